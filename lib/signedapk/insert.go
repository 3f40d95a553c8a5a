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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

// SpliceTarget is a finished zip file opened for update
type SpliceTarget interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
}

// InsertSigningBlock writes block where the central directory starts and
// moves the central directory and end record after it, updating the
// directory offset in the end record. Nothing before the central directory
// is modified.
func InsertSigningBlock(f SpliceTarget, block []byte, layout ziparchive.Layout) error {
	cd, end := layout.CentralDirectory, layout.EndRecord
	if cd.End() != end.Offset || end.Size < zipslicer.DirectoryEndLen {
		return fmt.Errorf("%w: central directory at %d+%d does not lead into a %d byte end record at %d",
			ErrPrecondition, cd.Offset, cd.Size, end.Size, end.Offset)
	}
	tail := make([]byte, cd.Size+end.Size)
	if _, err := f.ReadAt(tail, cd.Offset); err != nil {
		return fmt.Errorf("reading central directory: %w", err)
	}
	eocd := tail[cd.Size:]
	rec, err := zipslicer.ParseEndRecord(eocd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecondition, err)
	} else if rec.DirOffset != cd.Offset {
		return fmt.Errorf("%w: end record points to central directory at %d, expected %d",
			ErrPrecondition, rec.DirOffset, cd.Offset)
	}
	newOffset := cd.Offset + int64(len(block))
	if newOffset >= 1<<32 {
		return zipslicer.ErrZip64
	}
	binary.LittleEndian.PutUint32(eocd[zipslicer.DirectoryOffsetField:], uint32(newOffset))
	if _, err := f.WriteAt(block, cd.Offset); err != nil {
		return fmt.Errorf("writing signing block: %w", err)
	}
	if _, err := f.WriteAt(tail, newOffset); err != nil {
		return fmt.Errorf("writing central directory: %w", err)
	}
	if err := f.Truncate(newOffset + int64(len(tail))); err != nil {
		return err
	}
	return nil
}
