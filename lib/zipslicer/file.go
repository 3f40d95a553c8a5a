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

package zipslicer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash"
	"hash/crc32"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
)

// File is a single zip member. The local header and data live in r at Offset
// until the file is copied somewhere else with Dump.
type File struct {
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	InternalAttrs    uint16
	ExternalAttrs    uint32
	Offset           uint64

	Name    string
	Extra   []byte
	Comment []byte

	r        io.ReaderAt
	localLen int64
}

// NewFile builds a file record from already-compressed data. The local header
// and data are held in memory.
func NewFile(name string, method uint16, modified time.Time, crc uint32, uncompressedSize int64, compressed []byte) (*File, error) {
	if uncompressedSize >= uint32Max || int64(len(compressed)) >= uint32Max {
		return nil, ErrZip64
	}
	if len(name) > uint16Max {
		return nil, errors.New("zip: file name too long")
	}
	mdate, mtime := timeToMsDos(modified)
	f := &File{
		CreatorVersion:   zip20,
		ReaderVersion:    zip20,
		Method:           method,
		ModifiedTime:     mtime,
		ModifiedDate:     mdate,
		CRC32:            crc,
		CompressedSize:   uint64(len(compressed)),
		UncompressedSize: uint64(uncompressedSize),
		Name:             name,
	}
	if needsUTF8(name) {
		f.Flags |= flagUTF8
	}
	if strings.HasSuffix(name, "/") {
		// MS-DOS directory attribute
		f.ExternalAttrs = 0x10
	}
	hdr := zipLocalHeader{
		Signature:        fileHeaderSignature,
		ReaderVersion:    f.ReaderVersion,
		Flags:            f.Flags,
		Method:           f.Method,
		ModifiedTime:     f.ModifiedTime,
		ModifiedDate:     f.ModifiedDate,
		CRC32:            f.CRC32,
		CompressedSize:   uint32(f.CompressedSize),
		UncompressedSize: uint32(f.UncompressedSize),
		FilenameLen:      uint16(len(name)),
	}
	buf := bytes.NewBuffer(make([]byte, 0, fileHeaderLen+len(name)+len(compressed)))
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	buf.WriteString(name)
	buf.Write(compressed)
	f.r = bytes.NewReader(buf.Bytes())
	f.localLen = int64(fileHeaderLen + len(name))
	return f, nil
}

// Clone returns a copy of the file record that shares its backing reader, so
// that the copy can be relocated without disturbing the original directory.
func (f *File) Clone() *File {
	f2 := *f
	return &f2
}

// Return the size of the local file header including name and extra fields
func (f *File) localHeaderLen() (int64, error) {
	if f.localLen != 0 {
		return f.localLen, nil
	}
	var hdr zipLocalHeader
	var blob [fileHeaderLen]byte
	if _, err := f.r.ReadAt(blob[:], int64(f.Offset)); err != nil {
		return 0, err
	}
	_ = binary.Read(bytes.NewReader(blob[:]), binary.LittleEndian, &hdr)
	if hdr.Signature != fileHeaderSignature {
		return 0, errMissingLocal
	}
	f.localLen = fileHeaderLen + int64(hdr.FilenameLen) + int64(hdr.ExtraLen)
	return f.localLen, nil
}

// DataOffset returns the position of the (possibly compressed) file data
func (f *File) DataOffset() (int64, error) {
	n, err := f.localHeaderLen()
	if err != nil {
		return 0, err
	}
	return int64(f.Offset) + n, nil
}

func (f *File) descriptorLen() (int64, error) {
	if f.Flags&flagDataDescriptor == 0 {
		return 0, nil
	}
	start, err := f.DataOffset()
	if err != nil {
		return 0, err
	}
	var sig [4]byte
	if _, err := f.r.ReadAt(sig[:], start+int64(f.CompressedSize)); err != nil {
		return 0, err
	}
	if binary.LittleEndian.Uint32(sig[:]) == dataDescriptorSignature {
		return dataDescriptorLen, nil
	}
	// the signature is optional
	return dataDescriptorLen - 4, nil
}

// GetTotalSize returns the number of bytes the file occupies in the payload:
// local header, data and data descriptor if present
func (f *File) GetTotalSize() (int64, error) {
	hlen, err := f.localHeaderLen()
	if err != nil {
		return 0, err
	}
	dlen, err := f.descriptorLen()
	if err != nil {
		return 0, err
	}
	return hlen + int64(f.CompressedSize) + dlen, nil
}

// OpenRaw returns a reader for the file data without decompressing it
func (f *File) OpenRaw() (*io.SectionReader, error) {
	start, err := f.DataOffset()
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(f.r, start, int64(f.CompressedSize)), nil
}

// Open returns a reader for the decompressed file contents. The checksum is
// verified when EOF is reached.
func (f *File) Open() (io.ReadCloser, error) {
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, err
	}
	var rc io.ReadCloser
	switch f.Method {
	case Store:
		rc = io.NopCloser(raw)
	case Deflate:
		rc = flate.NewReader(raw)
	default:
		return nil, ErrUnsupported
	}
	return &checksumReader{rc: rc, hash: crc32.NewIEEE(), f: f}, nil
}

// ReadAll returns the decompressed file contents
func (f *File) ReadAll() ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := bytes.NewBuffer(make([]byte, 0, int(f.UncompressedSize)))
	if _, err := io.Copy(buf, rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dump copies the local header, data and data descriptor verbatim to w
func (f *File) Dump(w io.Writer) (int64, error) {
	size, err := f.GetTotalSize()
	if err != nil {
		return 0, err
	}
	return io.Copy(w, io.NewSectionReader(f.r, int64(f.Offset), size))
}

// GetDirectoryHeader returns the central directory record for this file
// using its current Offset
func (f *File) GetDirectoryHeader() ([]byte, error) {
	if f.Offset >= uint32Max || f.CompressedSize >= uint32Max || f.UncompressedSize >= uint32Max {
		return nil, ErrZip64
	}
	hdr := zipCentralDir{
		Signature:        directoryHeaderSignature,
		CreatorVersion:   f.CreatorVersion,
		ReaderVersion:    f.ReaderVersion,
		Flags:            f.Flags,
		Method:           f.Method,
		ModifiedTime:     f.ModifiedTime,
		ModifiedDate:     f.ModifiedDate,
		CRC32:            f.CRC32,
		CompressedSize:   uint32(f.CompressedSize),
		UncompressedSize: uint32(f.UncompressedSize),
		FilenameLen:      uint16(len(f.Name)),
		ExtraLen:         uint16(len(f.Extra)),
		CommentLen:       uint16(len(f.Comment)),
		InternalAttrs:    f.InternalAttrs,
		ExternalAttrs:    f.ExternalAttrs,
		Offset:           uint32(f.Offset),
	}
	buf := bytes.NewBuffer(make([]byte, 0, directoryHeaderLen+len(f.Name)+len(f.Extra)+len(f.Comment)))
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	buf.WriteString(f.Name)
	buf.Write(f.Extra)
	buf.Write(f.Comment)
	return buf.Bytes(), nil
}

type checksumReader struct {
	rc    io.ReadCloser
	hash  hash.Hash32
	nread uint64
	f     *File
	err   error
}

func (r *checksumReader) Read(b []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err = r.rc.Read(b)
	r.hash.Write(b[:n])
	r.nread += uint64(n)
	if err == nil {
		return
	}
	if err == io.EOF {
		if r.nread != r.f.UncompressedSize {
			err = io.ErrUnexpectedEOF
		} else if r.hash.Sum32() != r.f.CRC32 {
			err = ErrChecksum
		}
	}
	r.err = err
	return
}

func (r *checksumReader) Close() error {
	return r.rc.Close()
}

// See archive/zip
func timeToMsDos(t time.Time) (fDate uint16, fTime uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	fDate = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	fTime = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return
}

func needsUTF8(name string) bool {
	for _, r := range name {
		if r >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
