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

// Package ziparchive implements a zip file that is assembled in memory and
// written out in one pass when closed. Closing reports the byte ranges of the
// payload, central directory and end record so that callers can post-process
// the finished file.
package ziparchive

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/rs/zerolog"

	"github.com/sassoftware/apkseal/internal/closeonce"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

var (
	ErrExists = errors.New("ziparchive: entry already exists")
	ErrClosed = errors.New("ziparchive: archive is closed")
)

// DefaultModTime is stamped on new entries unless overridden, so that the
// same inputs always produce the same archive
var DefaultModTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is a file to add to the archive
type Entry struct {
	Name    string
	Content []byte
	// Method is zipslicer.Store or zipslicer.Deflate
	Method uint16
	// Level is the DEFLATE level; zero selects flate.DefaultCompression
	Level int
	// Modified defaults to the archive's modification time
	Modified time.Time
}

type Archive struct {
	path       string
	src        *os.File
	entries    []*zipslicer.File
	byName     map[string]*zipslicer.File
	comment    []byte
	commentSet bool
	truncate   bool
	modTime    time.Time
	mode       os.FileMode
	log        zerolog.Logger
	closed     closeonce.Closed
	layout     Layout
}

// Open an archive at path. If the file exists its entries are loaded and will
// be carried over when the archive is closed, otherwise a new archive is
// started. Nothing is written to path until Close.
func Open(path string, opts ...Option) (*Archive, error) {
	a := &Archive{
		path:    path,
		byName:  make(map[string]*zipslicer.File),
		modTime: DefaultModTime,
		mode:    0644,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.truncate {
		return a, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	} else if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	} else if st.Size() == 0 {
		f.Close()
		return a, nil
	}
	dir, err := zipslicer.Read(f, st.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, zf := range dir.File {
		if _, ok := a.byName[zf.Name]; ok {
			f.Close()
			return nil, fmt.Errorf("reading %s: duplicate entry %q", path, zf.Name)
		}
		a.entries = append(a.entries, zf)
		a.byName[zf.Name] = zf
	}
	if !a.commentSet {
		a.comment = dir.Comment
	}
	a.src = f
	a.mode = st.Mode().Perm()
	a.log.Debug().Str("path", path).Int("entries", len(a.entries)).Msg("opened existing archive")
	return a, nil
}

// Path returns the location the archive will be written to
func (a *Archive) Path() string {
	return a.path
}

// Closed returns true once the archive has been written
func (a *Archive) Closed() bool {
	return a.closed.Closed()
}

// Names returns the entry names in the order they will be written
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, f := range a.entries {
		names[i] = f.Name
	}
	return names
}

// Add compresses an entry and appends it to the archive
func (a *Archive) Add(e Entry) error {
	if a.closed.Closed() {
		return ErrClosed
	}
	if err := checkName(e.Name); err != nil {
		return err
	}
	if _, ok := a.byName[e.Name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, e.Name)
	}
	f, err := a.compress(e)
	if err != nil {
		return fmt.Errorf("adding %s: %w", e.Name, err)
	}
	a.entries = append(a.entries, f)
	a.byName[e.Name] = f
	a.log.Debug().
		Str("name", e.Name).
		Uint64("size", f.UncompressedSize).
		Uint64("csize", f.CompressedSize).
		Msg("entry added")
	return nil
}

// AddFromZip copies entries from another zip without recompressing them. If
// filter is not nil then only entries for which it returns true are copied.
// Returns the names that were added, in order.
func (a *Archive) AddFromZip(src *zipslicer.Directory, filter func(string) bool) ([]string, error) {
	if a.closed.Closed() {
		return nil, ErrClosed
	}
	var selected []*zipslicer.File
	seen := make(map[string]bool)
	for _, f := range src.File {
		if filter != nil && !filter(f.Name) {
			continue
		}
		if _, ok := a.byName[f.Name]; ok || seen[f.Name] {
			return nil, fmt.Errorf("%w: %s", ErrExists, f.Name)
		}
		seen[f.Name] = true
		selected = append(selected, f)
	}
	names := make([]string, len(selected))
	for i, f := range selected {
		f = f.Clone()
		a.entries = append(a.entries, f)
		a.byName[f.Name] = f
		names[i] = f.Name
	}
	a.log.Debug().Int("count", len(names)).Msg("entries copied from zip")
	return names, nil
}

// Delete removes an entry. Deleting a name that is not present does nothing.
func (a *Archive) Delete(name string) error {
	if a.closed.Closed() {
		return ErrClosed
	}
	f := a.byName[name]
	if f == nil {
		return nil
	}
	delete(a.byName, name)
	for i, f2 := range a.entries {
		if f2 == f {
			a.entries = append(a.entries[:i], a.entries[i+1:]...)
			break
		}
	}
	a.log.Debug().Str("name", name).Msg("entry deleted")
	return nil
}

// ContentOf returns the decompressed contents of an entry, or false if there
// is no entry by that name
func (a *Archive) ContentOf(name string) ([]byte, bool, error) {
	if a.closed.Closed() {
		return nil, false, ErrClosed
	}
	f := a.byName[name]
	if f == nil {
		return nil, false, nil
	}
	blob, err := f.ReadAll()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", name, err)
	}
	return blob, true, nil
}

func (a *Archive) compress(e Entry) (*zipslicer.File, error) {
	var data []byte
	switch e.Method {
	case zipslicer.Store:
		data = e.Content
	case zipslicer.Deflate:
		level := e.Level
		if level == 0 {
			level = flate.DefaultCompression
		}
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.Content); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		data = buf.Bytes()
	default:
		return nil, zipslicer.ErrUnsupported
	}
	modified := e.Modified
	if modified.IsZero() {
		modified = a.modTime
	}
	return zipslicer.NewFile(e.Name, e.Method, modified, crc32.ChecksumIEEE(e.Content), int64(len(e.Content)), data)
}

func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("ziparchive: empty entry name")
	case strings.HasPrefix(name, "/"):
		return fmt.Errorf("ziparchive: entry name %q must be relative", name)
	case strings.Contains(name, "\\"):
		return fmt.Errorf("ziparchive: entry name %q must use forward slashes", name)
	}
	return nil
}
