//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package apksig

import (
	"errors"
	"fmt"
	"hash"
	"sort"

	"github.com/sassoftware/apkseal/lib/pkcs7"
	"github.com/sassoftware/apkseal/lib/signjar"
)

type inspection struct {
	e      *Engine
	name   string
	digest hash.Hash
	done   bool
}

func (r *inspection) Name() string {
	return r.name
}

func (r *inspection) Write(d []byte) (int, error) {
	if r.done {
		return 0, fmt.Errorf("apksig: inspection of %s already completed", r.name)
	}
	return r.digest.Write(d)
}

func (r *inspection) Done() error {
	if r.done {
		return fmt.Errorf("apksig: inspection of %s already completed", r.name)
	}
	r.done = true
	e := r.e
	if e.closed {
		return ErrClosed
	}
	if e.inspecting[r.name] != r {
		// superseded by a later request or the entry was removed
		return nil
	}
	delete(e.inspecting, r.name)
	e.manifest.SetDigest(r.name, e.hash, r.digest.Sum(nil))
	e.log.Debug().Str("name", r.name).Msg("entry inspected")
	return nil
}

type jarSignature struct {
	e       *Engine
	entries []NamedEntry
	done    bool
}

func (r *jarSignature) Entries() []NamedEntry {
	return r.entries
}

func (r *jarSignature) Done() error {
	if r.done {
		return errors.New("apksig: JAR signature request already completed")
	}
	r.done = true
	e := r.e
	if e.jarPending != r {
		return errors.New("apksig: JAR signature request was superseded")
	}
	e.jarPending = nil
	e.dirty = false
	e.stale = make(map[string]bool)
	return nil
}

// produce the manifest, signature file and signature block for the current
// set of digests
func (e *Engine) signJar() (*jarSignature, error) {
	e.manifest.Sort()
	manifest := e.manifest.Dump()
	sigFile, err := signjar.DigestManifest(manifest, e.hash, e.cfg.CreatedBy, e.cfg.V2Enabled)
	if err != nil {
		return nil, fmt.Errorf("apksig: creating signature file: %w", err)
	}
	sigBlock, err := pkcs7.SignDetached(sigFile, e.cfg.PrivateKey, e.cfg.Certificates, e.hash)
	if err != nil {
		return nil, fmt.Errorf("apksig: signing signature file: %w", err)
	}
	sfName, blockName := signjar.SignatureNames(e.cfg.KeyAlias, e.cfg.PrivateKey.Public())
	stale := make([]string, 0, len(e.stale))
	for name := range e.stale {
		stale = append(stale, name)
	}
	sort.Strings(stale)
	entries := make([]NamedEntry, 0, len(stale)+3)
	for _, name := range stale {
		entries = append(entries, NamedEntry{Name: name})
	}
	entries = append(entries,
		NamedEntry{Name: signjar.ManifestName, Content: manifest},
		NamedEntry{Name: sfName, Content: sigFile},
		NamedEntry{Name: blockName, Content: sigBlock},
	)
	e.log.Debug().
		Int("sections", len(e.manifest.Order)).
		Str("digest", e.hash.String()).
		Str("signature", blockName).
		Msg("JAR signature created")
	return &jarSignature{e: e, entries: entries}, nil
}
