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

package signedapk

import (
	"fmt"
	"time"

	"github.com/sassoftware/apkseal/lib/signjar"
	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

// seed the engine with the manifest and the entries already in the archive
func (p *Package) seed(opts Options) error {
	hasManifest := contains(p.archive.Names(), signjar.ManifestName)
	if hasManifest && !opts.TrustManifest {
		if err := p.store.Delete(signjar.ManifestName); err != nil {
			return err
		}
		hasManifest = false
	}
	var manifest []byte
	if hasManifest {
		blob, ok, err := p.store.ContentOf(signjar.ManifestName)
		if err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: manifest content is missing", ErrPrecondition)
		}
		manifest = blob
	} else {
		manifest = signjar.NewManifest(opts.CreatedBy, opts.BuiltBy).Dump()
		if err := p.store.Add(ziparchive.Entry{
			Name:    signjar.ManifestName,
			Content: manifest,
			Method:  zipslicer.Deflate,
		}); err != nil {
			return err
		}
	}
	names := p.archive.Names()
	handled, err := p.engine.Seed(manifest, names)
	if err != nil {
		return err
	}
	skip := make(map[string]bool, len(handled))
	for _, name := range handled {
		skip[name] = true
	}
	for _, name := range names {
		if skip[name] {
			continue
		}
		if err := p.inspect(name); err != nil {
			return err
		}
	}
	p.log.Debug().
		Int("entries", len(names)).
		Bool("trusted_manifest", hasManifest).
		Msg("JAR signature started")
	return nil
}

// finishV1 writes the manifest, signature file and signature block
func (p *Package) finishV1() (err error) {
	start := time.Now()
	defer func() { observe("v1", start, err) }()
	req, err := p.engine.RequestJarSignatureEntries()
	if err != nil || req == nil {
		return err
	}
	entries := req.Entries()
	present := make(map[string]bool)
	for _, name := range p.archive.Names() {
		present[name] = true
	}
	for _, entry := range entries {
		if present[entry.Name] {
			if err := p.Delete(entry.Name); err != nil {
				return err
			}
		}
		if entry.Content == nil {
			continue
		}
		// signature material does not compress
		if err := p.store.Add(ziparchive.Entry{
			Name:    entry.Name,
			Content: entry.Content,
			Method:  zipslicer.Store,
		}); err != nil {
			return err
		}
		if err := p.inspect(entry.Name); err != nil {
			return err
		}
	}
	if err := req.Done(); err != nil {
		return err
	}
	p.log.Debug().Int("entries", len(entries)).Msg("JAR signature entries written")
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
