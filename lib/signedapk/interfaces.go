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
	"errors"

	"github.com/sassoftware/apkseal/lib/apksig"
	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

var (
	// ErrPrecondition means the archive or engine is in a state signing
	// cannot proceed from
	ErrPrecondition = errors.New("signedapk: precondition failed")
	ErrClosed       = errors.New("signedapk: package is closed")
)

// Archive is the zip file being signed
type Archive interface {
	Add(ziparchive.Entry) error
	AddFromZip(src *zipslicer.Directory, filter func(string) bool) ([]string, error)
	Delete(name string) error
	ContentOf(name string) ([]byte, bool, error)
	Names() []string
	Close() error
	CloseWithLayout() (ziparchive.Layout, error)
	Closed() bool
	Path() string
}

var _ Archive = (*ziparchive.Archive)(nil)

// Engine computes signatures on request
type Engine interface {
	Seed(manifest []byte, names []string) ([]string, error)
	RequestEntryInspection(name string) apksig.InspectionRequest
	NotifyEntryRemoved(name string)
	RequestJarSignatureEntries() (apksig.JarSignatureRequest, error)
	RequestSigningBlock(payload, centralDir, endOfDir apksig.DataSource) (apksig.SigningBlockRequest, error)
	Close() error
}

var _ Engine = (*apksig.Engine)(nil)
