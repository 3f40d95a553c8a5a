/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package atomicfile writes a file next to its final destination and renames
// it into place only once it is complete.
package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var ErrClosed = errors.New("atomicfile: file is closed")

type AtomicFile interface {
	io.WriteCloser
	io.WriterAt
	// Commit flushes the temporary file and renames it over the destination
	Commit() error
	// Size returns the number of bytes written so far
	Size() int64
}

type atomicFile struct {
	name     string
	mode     os.FileMode
	tempfile *os.File
	size     int64
}

// New creates a temporary file in the same directory as name. Close discards
// it unless Commit has been called.
func New(name string, mode os.FileMode) (AtomicFile, error) {
	tempfile, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".tmp")
	if err != nil {
		return nil, err
	}
	return &atomicFile{name: name, mode: mode, tempfile: tempfile}, nil
}

func (f *atomicFile) Write(d []byte) (int, error) {
	if f.tempfile == nil {
		return 0, ErrClosed
	}
	n, err := f.tempfile.Write(d)
	f.size += int64(n)
	return n, err
}

func (f *atomicFile) WriteAt(d []byte, off int64) (int, error) {
	if f.tempfile == nil {
		return 0, ErrClosed
	}
	n, err := f.tempfile.WriteAt(d, off)
	if end := off + int64(n); end > f.size {
		f.size = end
	}
	return n, err
}

func (f *atomicFile) Size() int64 {
	return f.size
}

func (f *atomicFile) Close() error {
	if f.tempfile == nil {
		return nil
	}
	f.tempfile.Close()
	os.Remove(f.tempfile.Name())
	f.tempfile = nil
	return nil
}

func (f *atomicFile) Commit() error {
	if f.tempfile == nil {
		return ErrClosed
	}
	tempname := f.tempfile.Name()
	if err := f.tempfile.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.tempfile.Chmod(f.mode); err != nil {
		f.Close()
		return err
	}
	if err := f.tempfile.Close(); err != nil {
		os.Remove(tempname)
		f.tempfile = nil
		return err
	}
	f.tempfile = nil
	// rename can't overwrite on windows
	if err := os.Remove(f.name); err != nil && !os.IsNotExist(err) {
		os.Remove(tempname)
		return err
	}
	if err := os.Rename(tempname, f.name); err != nil {
		os.Remove(tempname)
		return err
	}
	return nil
}
