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

import "errors"

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	directory64LocSignature  = 0x07064b50
	dataDescriptorSignature  = 0x08074b50
	fileHeaderLen            = 30
	directoryHeaderLen       = 46
	directory64LocLen        = 20
	dataDescriptorLen        = 16

	// DirectoryEndLen is the size of an end of central directory record with
	// no trailing comment.
	DirectoryEndLen = 22
	// DirectoryOffsetField is the position within the end of central
	// directory record of the little-endian uint32 holding the offset of the
	// central directory from the start of the file.
	DirectoryOffsetField = 16

	uint16Max = 0xffff
	uint32Max = 0xffffffff

	zip20 = 20

	flagDataDescriptor = 0x8
	flagUTF8           = 0x800
)

// Compression methods
const (
	Store   uint16 = 0
	Deflate uint16 = 8
)

var (
	ErrZip64        = errors.New("ZIP64 archives are not supported")
	ErrNotFound     = errors.New("zip central directory not found")
	ErrChecksum     = errors.New("zip: checksum error")
	ErrUnsupported  = errors.New("zip: unsupported compression method")
	errMissingLocal = errors.New("zip: local file header not found")
)

type zipLocalHeader struct {
	Signature        uint32
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLen      uint16
	ExtraLen         uint16
}

type zipCentralDir struct {
	Signature        uint32
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FilenameLen      uint16
	ExtraLen         uint16
	CommentLen       uint16
	StartDisk        uint16
	InternalAttrs    uint16
	ExternalAttrs    uint32
	Offset           uint32
}

type zipEndRecord struct {
	Signature     uint32
	DiskNumber    uint16
	DiskCD        uint16
	DiskCDCount   uint16
	TotalCDCount  uint16
	CDSize        uint32
	CDOffset      uint32
	CommentLength uint16
}
