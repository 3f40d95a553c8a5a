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

// Package apksig signs Android packages. An Engine does not touch the
// archive itself: it asks its caller for entry contents, hands back the
// META-INF entries of a JAR signature, and produces an APK Signing Block
// from views of the finished file.
package apksig

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys are still found in old keystores
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sassoftware/apkseal/lib/signjar"
	"github.com/sassoftware/apkseal/lib/x509tools"
)

var (
	ErrUnsupportedKey = errors.New("apksig: unsupported key type")
	ErrClosed         = errors.New("apksig: engine is closed")
	ErrNotSeeded      = errors.New("apksig: engine has not been seeded with a manifest")
	ErrPending        = errors.New("apksig: request not completed")
)

// CreatedBy is written to the signature file when Config.CreatedBy is empty
const CreatedBy = "1.0 (apkseal)"

// Android before API 18 only verifies SHA-1 JAR digests
const minSdkSHA256 = 18

type Config struct {
	PrivateKey crypto.Signer
	// Certificates is the signer's chain, leaf first
	Certificates []*x509.Certificate
	V1Enabled    bool
	V2Enabled    bool
	// CreatedBy goes into the signature file
	CreatedBy     string
	MinSdkVersion int
	// KeyAlias names the signature file and signature block
	KeyAlias string
	// Executor runs V2 digest tasks. Defaults to Sequential.
	Executor Executor
	Logger   *zerolog.Logger
}

type Engine struct {
	cfg  Config
	log  zerolog.Logger
	hash crypto.Hash
	st   sigType

	manifest   *signjar.FilesMap
	inspecting map[string]*inspection
	stale      map[string]bool
	dirty      bool
	jarPending *jarSignature
	closed     bool
}

func New(cfg Config) (*Engine, error) {
	if !cfg.V1Enabled && !cfg.V2Enabled {
		return nil, errors.New("apksig: no signature schemes enabled")
	}
	if cfg.PrivateKey == nil {
		return nil, errors.New("apksig: private key is required")
	}
	if len(cfg.Certificates) == 0 {
		return nil, errors.New("apksig: at least one certificate is required")
	}
	pub := cfg.PrivateKey.Public()
	if !x509tools.SameKey(pub, cfg.Certificates[0].PublicKey) {
		return nil, errors.New("apksig: first certificate does not match the private key")
	}
	st, err := sigTypeForKey(pub)
	if err != nil {
		return nil, err
	}
	if cfg.KeyAlias == "" {
		cfg.KeyAlias = signjar.DefaultAlias
	}
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = CreatedBy
	}
	if cfg.Executor == nil {
		cfg.Executor = Sequential
	}
	e := &Engine{
		cfg:        cfg,
		log:        zerolog.Nop(),
		st:         st,
		hash:       crypto.SHA1,
		inspecting: make(map[string]*inspection),
		stale:      make(map[string]bool),
	}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	if cfg.MinSdkVersion >= minSdkSHA256 {
		e.hash = crypto.SHA256
	}
	return e, nil
}

// DigestAlgorithm returns the hash used for JAR digests
func (e *Engine) DigestAlgorithm() crypto.Hash {
	return e.hash
}

// Seed starts a JAR signature from an existing manifest and the full list of
// entries in the archive. Sections of the manifest for entries that are not
// in the archive are dropped. Returns the names that don't need to be
// inspected.
func (e *Engine) Seed(manifest []byte, names []string) ([]string, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if !e.cfg.V1Enabled {
		return names, nil
	}
	files, err := signjar.ParseManifest(manifest)
	if errors.Is(err, signjar.ErrManifestLineEndings) {
		// sections are rewritten with proper line endings when dumped
		files, err = signjar.ParseManifestLenient(manifest)
	}
	if err != nil {
		return nil, fmt.Errorf("apksig: parsing manifest: %w", err)
	}
	present := make(map[string]bool, len(names))
	var handled []string
	ownSF, ownBlock := signjar.SignatureNames(e.cfg.KeyAlias, e.cfg.PrivateKey.Public())
	for _, name := range names {
		present[name] = true
		switch {
		case signjar.IsSignatureFile(name):
			handled = append(handled, name)
			if name != signjar.ManifestName && name != ownSF && name != ownBlock {
				e.stale[name] = true
			}
		case strings.HasSuffix(name, "/"):
			handled = append(handled, name)
		}
	}
	for _, name := range append([]string(nil), files.Order...) {
		if !present[name] {
			files.Remove(name)
		}
	}
	e.manifest = files
	e.dirty = true
	e.log.Debug().
		Int("entries", len(names)).
		Int("stale", len(e.stale)).
		Msg("JAR signature seeded")
	return handled, nil
}

// RequestEntryInspection returns a request for the contents of the named
// entry, or nil if the entry does not contribute to any signature
func (e *Engine) RequestEntryInspection(name string) InspectionRequest {
	if e.closed || !e.cfg.V1Enabled || e.manifest == nil {
		return nil
	}
	if signjar.IsSignatureFile(name) || strings.HasSuffix(name, "/") {
		return nil
	}
	req := &inspection{e: e, name: name, digest: e.hash.New()}
	e.inspecting[name] = req
	// the old digest no longer describes the entry
	e.dirty = true
	return req
}

// NotifyEntryRemoved drops a deleted entry from the JAR signature
func (e *Engine) NotifyEntryRemoved(name string) {
	if e.closed || !e.cfg.V1Enabled || e.manifest == nil {
		return
	}
	if signjar.IsSignatureFile(name) {
		delete(e.stale, name)
		return
	}
	delete(e.inspecting, name)
	if _, ok := e.manifest.Files[name]; ok {
		e.manifest.Remove(name)
		e.dirty = true
	}
}

// RequestJarSignatureEntries returns the META-INF entries for the current
// state of the archive, or nil if they are already up to date
func (e *Engine) RequestJarSignatureEntries() (JarSignatureRequest, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if !e.cfg.V1Enabled {
		return nil, nil
	}
	if e.manifest == nil {
		return nil, ErrNotSeeded
	}
	if len(e.inspecting) != 0 {
		pending := make([]string, 0, len(e.inspecting))
		for name := range e.inspecting {
			pending = append(pending, name)
		}
		sort.Strings(pending)
		return nil, fmt.Errorf("%w: inspection of %s", ErrPending, strings.Join(pending, ", "))
	}
	if !e.dirty {
		return nil, nil
	}
	req, err := e.signJar()
	if err != nil {
		return nil, err
	}
	e.jarPending = req
	return req, nil
}

// RequestSigningBlock prepares a V2 signing block over the three sections of
// a finished zip: entries, central directory and end of central directory
func (e *Engine) RequestSigningBlock(payload, centralDir, endOfDir DataSource) (SigningBlockRequest, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if !e.cfg.V2Enabled {
		return nil, errors.New("apksig: V2 signing is not enabled")
	}
	if e.cfg.V1Enabled {
		if e.jarPending != nil {
			return nil, fmt.Errorf("%w: JAR signature entries were not written", ErrPending)
		} else if e.manifest == nil || e.dirty || len(e.inspecting) != 0 {
			return nil, fmt.Errorf("%w: JAR signature is out of date", ErrPending)
		}
	}
	return &signingBlock{e: e, payload: payload, centralDir: centralDir, endOfDir: endOfDir}, nil
}

// Close releases the engine. Further requests fail with ErrClosed.
func (e *Engine) Close() error {
	e.closed = true
	e.inspecting = nil
	return nil
}

func pubAlgorithm(pub crypto.PublicKey) x509.PublicKeyAlgorithm {
	switch pub.(type) {
	case *rsa.PublicKey:
		return x509.RSA
	case *ecdsa.PublicKey:
		return x509.ECDSA
	case *dsa.PublicKey:
		return x509.DSA
	default:
		return x509.UnknownPublicKeyAlgorithm
	}
}
