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

package apktest

import (
	"archive/zip"
	"crypto"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkseal/lib/pkcs7"
	"github.com/sassoftware/apkseal/lib/signjar"
	"github.com/sassoftware/apkseal/lib/x509tools"
)

type V1Signature struct {
	Hash         crypto.Hash
	Manifest     *signjar.FilesMap
	SigFileName  string
	SigFile      *signjar.FilesMap
	SigBlockName string
	// Files holds every entry in the package by name
	Files map[string][]byte
	// Methods holds the compression method of each entry
	Methods map[string]uint16
}

// ReadZip returns the contents and compression method of every entry
func ReadZip(t testing.TB, path string) (map[string][]byte, map[string]uint16) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	files := make(map[string][]byte, len(zr.File))
	methods := make(map[string]uint16, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		blob, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err, f.Name)
		_, dup := files[f.Name]
		require.False(t, dup, "duplicate entry %s", f.Name)
		files[f.Name] = blob
		methods[f.Name] = f.Method
	}
	return files, methods
}

// VerifyV1 checks the JAR signature of a package: every entry digest in the
// manifest, every section digest in the signature file and the PKCS#7
// signature block
func VerifyV1(t testing.TB, path string) V1Signature {
	t.Helper()
	files, methods := ReadZip(t, path)
	ret := V1Signature{Files: files, Methods: methods}
	rawManifest, ok := files[signjar.ManifestName]
	require.True(t, ok, "manifest missing")
	manifest, err := signjar.ParseManifest(rawManifest)
	require.NoError(t, err)
	ret.Manifest = manifest
	for name := range files {
		upper := strings.ToUpper(name)
		if strings.HasPrefix(upper, signjar.MetaInf) && strings.HasSuffix(upper, ".SF") {
			require.Empty(t, ret.SigFileName, "more than one signature file")
			ret.SigFileName = name
		}
	}
	require.NotEmpty(t, ret.SigFileName, "signature file missing")
	base := strings.TrimSuffix(ret.SigFileName, ".SF")
	for _, ext := range []string{".RSA", ".EC", ".DSA"} {
		if _, ok := files[base+ext]; ok {
			ret.SigBlockName = base + ext
		}
	}
	require.NotEmpty(t, ret.SigBlockName, "signature block missing")
	_, err = pkcs7.VerifyDetached(files[ret.SigBlockName], files[ret.SigFileName])
	require.NoError(t, err, "signature block")

	sigFile, err := signjar.ParseManifest(files[ret.SigFileName])
	require.NoError(t, err)
	ret.SigFile = sigFile
	for hash, name := range x509tools.HashNames {
		if signjar.GetAttr(sigFile.Main, name+"-Digest-Manifest") != "" {
			ret.Hash = hash
		}
	}
	require.NotZero(t, ret.Hash, "no manifest digest in signature file")
	hashName := x509tools.HashNames[ret.Hash]
	assert.Equal(t, digest(ret.Hash, rawManifest), signjar.GetAttr(sigFile.Main, hashName+"-Digest-Manifest"))

	// every entry is in the manifest with the right digest
	for name, blob := range files {
		if signjar.IsSignatureFile(name) || strings.HasSuffix(name, "/") {
			continue
		}
		section := manifest.Files[name]
		require.NotNil(t, section, "%s missing from manifest", name)
		assert.Equal(t, digest(ret.Hash, blob), signjar.GetAttr(section, hashName+"-Digest"), name)
	}
	// and nothing else is
	for _, name := range manifest.Order {
		_, ok := files[name]
		assert.True(t, ok, "manifest names missing entry %s", name)
	}
	// every manifest section is in the signature file
	sections := manifestSections(rawManifest)
	require.Len(t, sections, len(manifest.Order)+1)
	assert.Equal(t, digest(ret.Hash, sections[0]), signjar.GetAttr(sigFile.Main, hashName+"-Digest-Manifest-Main-Attributes"))
	for i, name := range manifest.Order {
		sfSection := sigFile.Files[name]
		require.NotNil(t, sfSection, "%s missing from signature file", name)
		assert.Equal(t, digest(ret.Hash, sections[i+1]), signjar.GetAttr(sfSection, hashName+"-Digest"), name)
	}
	return ret
}

// Header returns the main attributes of the signature file
func (s V1Signature) Header() http.Header {
	return s.SigFile.Main
}

func digest(hash crypto.Hash, blob []byte) string {
	d := hash.New()
	d.Write(blob)
	return base64.StdEncoding.EncodeToString(d.Sum(nil))
}

func manifestSections(manifest []byte) [][]byte {
	var ret [][]byte
	for _, section := range strings.SplitAfter(string(manifest), "\r\n\r\n") {
		if section != "" {
			ret = append(ret, []byte(section))
		}
	}
	return ret
}
