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
	"crypto"
	"encoding/binary"
	"fmt"
	"io"
)

// chunkDigests hashes each 1MiB chunk of a section. The result is the
// concatenation of one digest per chunk.
func chunkDigests(src DataSource, hash crypto.Hash) ([]byte, error) {
	size := src.Size()
	count := (size + chunkSize - 1) / chunkSize
	ret := make([]byte, 0, int(count)*hash.Size())
	buf := make([]byte, chunkSize)
	var pref [5]byte
	pref[0] = 0xa5
	for pos := int64(0); pos < size; pos += chunkSize {
		n := size - pos
		if n > chunkSize {
			n = chunkSize
		}
		chunk := buf[:n]
		if nread, err := src.ReadAt(chunk, pos); nread != len(chunk) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		binary.LittleEndian.PutUint32(pref[1:], uint32(n))
		d := hash.New()
		d.Write(pref[:])
		d.Write(chunk)
		ret = d.Sum(ret)
	}
	return ret, nil
}

// contentDigest computes the top-level digest over the chunks of all
// sections, in order. Each section is digested by a separate task.
func contentDigest(sections []DataSource, hash crypto.Hash, exec Executor) ([]byte, error) {
	results := make([][]byte, len(sections))
	tasks := make([]func() error, len(sections))
	for i, src := range sections {
		i, src := i, src
		tasks[i] = func() error {
			digests, err := chunkDigests(src, hash)
			if err != nil {
				return fmt.Errorf("digesting section %d: %w", i+1, err)
			}
			results[i] = digests
			return nil
		}
	}
	if exec == nil {
		exec = Sequential
	}
	if err := exec(tasks); err != nil {
		return nil, err
	}
	var count int
	for _, digests := range results {
		count += len(digests) / hash.Size()
	}
	var pref [5]byte
	pref[0] = 0x5a
	binary.LittleEndian.PutUint32(pref[1:], uint32(count))
	top := hash.New()
	top.Write(pref[:])
	for _, digests := range results {
		top.Write(digests)
	}
	return top.Sum(nil), nil
}
