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

package ziparchive

import (
	"bufio"
	"fmt"

	"github.com/sassoftware/apkseal/lib/atomicfile"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

// ByteRange is a region of the finished file
type ByteRange struct {
	Offset int64
	Size   int64
}

// End returns the offset immediately after the range
func (r ByteRange) End() int64 {
	return r.Offset + r.Size
}

// Layout describes where each zip structure landed in the finished file
type Layout struct {
	Payload          ByteRange
	CentralDirectory ByteRange
	EndRecord        ByteRange
}

// Size returns the total size of the file
func (l Layout) Size() int64 {
	return l.EndRecord.End()
}

// Close writes the archive to its path. Sources opened by the archive are
// released whether or not writing succeeded. Calling Close again returns the
// result of the first call.
func (a *Archive) Close() error {
	_, err := a.CloseWithLayout()
	return err
}

// CloseWithLayout writes the archive like Close and reports where the
// payload, central directory and end record were placed
func (a *Archive) CloseWithLayout() (Layout, error) {
	err := a.closed.Close(a.write)
	if err != nil {
		return Layout{}, err
	}
	return a.layout, nil
}

func (a *Archive) write() error {
	if a.src != nil {
		defer a.src.Close()
	}
	out, err := atomicfile.New(a.path, a.mode)
	if err != nil {
		return err
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	files := make([]*zipslicer.File, len(a.entries))
	var pos int64
	for i, f := range a.entries {
		n, err := f.Dump(w)
		if err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
		placed := f.Clone()
		placed.Offset = uint64(pos)
		files[i] = placed
		pos += n
	}
	dir := &zipslicer.Directory{
		File:    files,
		DirLoc:  pos,
		Comment: a.comment,
	}
	dirSize, endSize, err := dir.WriteDirectory(w)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := out.Commit(); err != nil {
		return err
	}
	a.layout = Layout{
		Payload:          ByteRange{Offset: 0, Size: pos},
		CentralDirectory: ByteRange{Offset: pos, Size: dirSize},
		EndRecord:        ByteRange{Offset: pos + dirSize, Size: endSize},
	}
	a.log.Debug().
		Str("path", a.path).
		Int("entries", len(files)).
		Int64("size", a.layout.Size()).
		Msg("archive written")
	return nil
}
