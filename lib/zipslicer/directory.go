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

package zipslicer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Directory is the parsed central directory of a zip file
type Directory struct {
	File    []*File
	Size    int64
	DirLoc  int64
	DirSize int64
	EndLoc  int64
	Comment []byte
	r       io.ReaderAt
}

// EndRecord holds the fields of an end of central directory record that
// matter for locating the directory
type EndRecord struct {
	Entries   int
	DirSize   int64
	DirOffset int64
	Comment   []byte
}

// ParseEndRecord decodes an end of central directory record, including any
// trailing comment
func ParseEndRecord(blob []byte) (*EndRecord, error) {
	if len(blob) < DirectoryEndLen {
		return nil, io.ErrUnexpectedEOF
	}
	var end zipEndRecord
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &end)
	if end.Signature != directoryEndSignature {
		return nil, ErrNotFound
	}
	if end.TotalCDCount == uint16Max || end.CDSize == uint32Max || end.CDOffset == uint32Max {
		return nil, ErrZip64
	}
	if len(blob) < DirectoryEndLen+int(end.CommentLength) {
		return nil, errors.New("zip: truncated end of directory comment")
	}
	return &EndRecord{
		Entries:   int(end.TotalCDCount),
		DirSize:   int64(end.CDSize),
		DirOffset: int64(end.CDOffset),
		Comment:   blob[DirectoryEndLen : DirectoryEndLen+int(end.CommentLength)],
	}, nil
}

// FindDirectory locates the end of central directory record, which may be
// followed by a comment of up to 64KiB. Returns the record and its offset.
func FindDirectory(r io.ReaderAt, size int64) (*EndRecord, int64, error) {
	if size < DirectoryEndLen {
		return nil, 0, ErrNotFound
	}
	searchLen := int64(DirectoryEndLen + uint16Max)
	if searchLen > size {
		searchLen = size
	}
	buf := make([]byte, searchLen)
	if _, err := r.ReadAt(buf, size-searchLen); err != nil && err != io.EOF {
		return nil, 0, err
	}
	for i := len(buf) - DirectoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != directoryEndSignature {
			continue
		}
		// the comment must run exactly to the end of the file
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20:]))
		if i+DirectoryEndLen+commentLen != len(buf) {
			continue
		}
		end, err := ParseEndRecord(buf[i:])
		if err != nil {
			return nil, 0, err
		}
		endLoc := size - searchLen + int64(i)
		if endLoc >= directory64LocLen {
			var sig [4]byte
			if _, err := r.ReadAt(sig[:], endLoc-directory64LocLen); err == nil &&
				binary.LittleEndian.Uint32(sig[:]) == directory64LocSignature {
				return nil, 0, ErrZip64
			}
		}
		return end, endLoc, nil
	}
	return nil, 0, ErrNotFound
}

// Read parses the central directory of a zip file
func Read(r io.ReaderAt, size int64) (*Directory, error) {
	end, endLoc, err := FindDirectory(r, size)
	if err != nil {
		return nil, err
	}
	if end.DirOffset+end.DirSize > endLoc {
		return nil, fmt.Errorf("zip: central directory at %d+%d overlaps end record at %d", end.DirOffset, end.DirSize, endLoc)
	}
	cd := make([]byte, end.DirSize)
	if _, err := r.ReadAt(cd, end.DirOffset); err != nil {
		return nil, err
	}
	d := &Directory{
		File:    make([]*File, 0, end.Entries),
		Size:    size,
		DirLoc:  end.DirOffset,
		DirSize: end.DirSize,
		EndLoc:  endLoc,
		Comment: end.Comment,
		r:       r,
	}
	for len(d.File) < end.Entries {
		if len(cd) < directoryHeaderLen || binary.LittleEndian.Uint32(cd) != directoryHeaderSignature {
			return nil, errors.New("zip: truncated central directory")
		}
		var hdr zipCentralDir
		_ = binary.Read(bytes.NewReader(cd), binary.LittleEndian, &hdr)
		varLen := int(hdr.FilenameLen) + int(hdr.ExtraLen) + int(hdr.CommentLen)
		if len(cd) < directoryHeaderLen+varLen {
			return nil, errors.New("zip: truncated central directory")
		}
		if hdr.CompressedSize == uint32Max || hdr.UncompressedSize == uint32Max || hdr.Offset == uint32Max {
			return nil, ErrZip64
		}
		cd = cd[directoryHeaderLen:]
		f := &File{
			CreatorVersion:   hdr.CreatorVersion,
			ReaderVersion:    hdr.ReaderVersion,
			Flags:            hdr.Flags,
			Method:           hdr.Method,
			ModifiedTime:     hdr.ModifiedTime,
			ModifiedDate:     hdr.ModifiedDate,
			CRC32:            hdr.CRC32,
			CompressedSize:   uint64(hdr.CompressedSize),
			UncompressedSize: uint64(hdr.UncompressedSize),
			InternalAttrs:    hdr.InternalAttrs,
			ExternalAttrs:    hdr.ExternalAttrs,
			Offset:           uint64(hdr.Offset),
			r:                r,
		}
		f.Name, cd = string(cd[:int(hdr.FilenameLen)]), cd[int(hdr.FilenameLen):]
		f.Extra, cd = cd[:int(hdr.ExtraLen)], cd[int(hdr.ExtraLen):]
		f.Comment, cd = cd[:int(hdr.CommentLen)], cd[int(hdr.CommentLen):]
		d.File = append(d.File, f)
	}
	return d, nil
}

// WriteDirectory writes the central directory for all files, followed by an
// end of central directory record, using DirLoc as the directory offset.
// Returns the size of each part.
func (d *Directory) WriteDirectory(w io.Writer) (dirSize, endSize int64, err error) {
	if len(d.File) >= uint16Max || d.DirLoc >= uint32Max {
		return 0, 0, ErrZip64
	}
	if len(d.Comment) > uint16Max {
		return 0, 0, errors.New("zip: comment too long")
	}
	buf := bufio.NewWriter(w)
	for _, f := range d.File {
		blob, err := f.GetDirectoryHeader()
		if err != nil {
			return 0, 0, err
		}
		if _, err := buf.Write(blob); err != nil {
			return 0, 0, err
		}
		dirSize += int64(len(blob))
	}
	if dirSize >= uint32Max {
		return 0, 0, ErrZip64
	}
	end := zipEndRecord{
		Signature:     directoryEndSignature,
		DiskCDCount:   uint16(len(d.File)),
		TotalCDCount:  uint16(len(d.File)),
		CDSize:        uint32(dirSize),
		CDOffset:      uint32(d.DirLoc),
		CommentLength: uint16(len(d.Comment)),
	}
	if err := binary.Write(buf, binary.LittleEndian, end); err != nil {
		return 0, 0, err
	}
	if _, err := buf.Write(d.Comment); err != nil {
		return 0, 0, err
	}
	d.DirSize = dirSize
	endSize = DirectoryEndLen + int64(len(d.Comment))
	return dirSize, endSize, buf.Flush()
}

// NextFileOffset returns the offset immediately following the last file's
// data, which is where the central directory would begin if nothing was
// inserted before it
func (d *Directory) NextFileOffset() (int64, error) {
	var next int64
	for _, f := range d.File {
		size, err := f.GetTotalSize()
		if err != nil {
			return 0, err
		}
		if end := int64(f.Offset) + size; end > next {
			next = end
		}
	}
	return next, nil
}
