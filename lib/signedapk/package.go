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

// Package signedapk signs an Android package while it is being written. A
// Package wraps an archive: entries added through it are digested for the
// JAR signature as they arrive, and closing it writes the JAR signature
// entries, finishes the zip and inserts the APK Signing Block.
package signedapk

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sassoftware/apkseal/internal/closeonce"
	"github.com/sassoftware/apkseal/lib/apksig"
	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

// store is the part of an archive that entries are added through, either
// the archive itself or a cache in front of it
type store interface {
	Add(ziparchive.Entry) error
	AddFromZip(src *zipslicer.Directory, filter func(string) bool) ([]string, error)
	Delete(name string) error
	ContentOf(name string) ([]byte, bool, error)
}

// Package signs an archive as entries are written to it. Signature files are
// generated by the engine and written when the package is closed.
type Package struct {
	archive Archive
	store   store
	cache   *contentCache
	engine  Engine
	v1, v2  bool
	log     zerolog.Logger
	closed  closeonce.Closed
}

// New starts signing an archive with the built-in engine. If neither scheme
// is enabled the package passes everything straight through to the archive.
// On failure the archive is closed.
func New(archive Archive, opts Options) (*Package, error) {
	if !opts.V1Enabled && !opts.V2Enabled {
		return NewWithEngine(archive, nil, opts)
	}
	engine, err := apksig.New(opts.engineConfig())
	if err != nil {
		return nil, errors.Join(err, archive.Close())
	}
	return NewWithEngine(archive, engine, opts)
}

// NewWithEngine starts signing an archive with the given engine. The package
// takes ownership of both, and on failure both are closed.
func NewWithEngine(archive Archive, engine Engine, opts Options) (*Package, error) {
	p := &Package{
		archive: archive,
		store:   archive,
		engine:  engine,
		v1:      opts.V1Enabled,
		v2:      opts.V2Enabled,
		log:     zerolog.Nop(),
	}
	if opts.Logger != nil {
		p.log = *opts.Logger
	}
	if engine == nil && (p.v1 || p.v2) {
		return nil, errors.Join(errors.New("signedapk: a signing engine is required"), archive.Close())
	}
	if p.v1 {
		p.cache = newContentCache(archive)
		p.store = p.cache
		if err := p.seed(opts); err != nil {
			err = fmt.Errorf("starting JAR signature: %w", err)
			return nil, errors.Join(err, p.release())
		}
	}
	return p, nil
}

// Add an entry to the archive
func (p *Package) Add(e ziparchive.Entry) error {
	if p.closed.Closed() {
		return ErrClosed
	}
	if err := p.store.Add(e); err != nil {
		return err
	}
	return p.inspect(e.Name)
}

// AddFromZip copies entries from another zip, digesting each one that is
// copied. Returns the names that were added.
func (p *Package) AddFromZip(src *zipslicer.Directory, filter func(string) bool) ([]string, error) {
	if p.closed.Closed() {
		return nil, ErrClosed
	}
	names, err := p.store.AddFromZip(src, filter)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := p.inspect(name); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// Delete an entry from the archive
func (p *Package) Delete(name string) error {
	if p.closed.Closed() {
		return ErrClosed
	}
	if err := p.store.Delete(name); err != nil {
		return err
	}
	if p.v1 {
		p.engine.NotifyEntryRemoved(name)
	}
	return nil
}

// Names lists the entries currently in the archive
func (p *Package) Names() []string {
	return p.archive.Names()
}

// Path returns the location of the output file
func (p *Package) Path() string {
	return p.archive.Path()
}

// Closed reports whether Close has been called
func (p *Package) Closed() bool {
	return p.closed.Closed()
}

// Close finishes the signatures and the archive. The engine and archive are
// released even if signing fails, in which case the output must be treated
// as unsigned. Calling Close again returns the first result.
func (p *Package) Close() error {
	return p.closed.Close(p.finish)
}

func (p *Package) finish() error {
	start := time.Now()
	var errs []error
	v1ok := true
	if p.v1 {
		if err := p.finishV1(); err != nil {
			errs = append(errs, fmt.Errorf("JAR signature: %w", err))
			v1ok = false
		}
	}
	if p.v2 && v1ok {
		if err := p.finishV2(); err != nil {
			errs = append(errs, fmt.Errorf("APK signing block: %w", err))
		}
	}
	if err := p.release(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if p.v1 || p.v2 {
		p.log.Info().
			Str("path", p.archive.Path()).
			Bool("v1", p.v1).
			Bool("v2", p.v2).
			Dur("duration", time.Since(start)).
			Msg("package signed")
	}
	return nil
}

// release the engine and close the archive if it is still open
func (p *Package) release() error {
	var errs []error
	if p.engine != nil {
		if err := p.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing signing engine: %w", err))
		}
	}
	if !p.archive.Closed() {
		if err := p.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// inspect hands the contents of a newly added entry to the engine if it asks
// for them
func (p *Package) inspect(name string) error {
	if !p.v1 {
		return nil
	}
	req := p.engine.RequestEntryInspection(name)
	if req == nil {
		return nil
	}
	blob, ok, err := p.store.ContentOf(name)
	if err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: no content for %s", ErrPrecondition, name)
	}
	if _, err := req.Write(blob); err != nil {
		return fmt.Errorf("inspecting %s: %w", name, err)
	}
	if err := req.Done(); err != nil {
		return fmt.Errorf("inspecting %s: %w", name, err)
	}
	return nil
}
