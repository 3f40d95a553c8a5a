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
	"bytes"
	"crypto"
	"crypto/hmac"
	"crypto/x509"
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkseal/lib/x509tools"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

const (
	sigMagic = "APK Sig Block 42"
	sigApkV2 = 0x7109871a
)

var sigHashes = map[uint32]crypto.Hash{
	0x0103: crypto.SHA256,
	0x0104: crypto.SHA512,
	0x0201: crypto.SHA256,
	0x0202: crypto.SHA512,
	0x0301: crypto.SHA256,
}

type V2Signature struct {
	Algorithm   uint32
	Certificate *x509.Certificate
	// Offset is where the signing block starts
	Offset int64
	Size   int64
}

// SigningBlock returns the raw signing block of a package and its offset, or
// nil if there is none
func SigningBlock(t testing.TB, path string) ([]byte, int64) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	st, err := f.Stat()
	require.NoError(t, err)
	inz, err := zipslicer.Read(f, st.Size())
	require.NoError(t, err)
	sigLoc, err := inz.NextFileOffset()
	require.NoError(t, err)
	if sigLoc == inz.DirLoc {
		return nil, sigLoc
	}
	blob := make([]byte, inz.DirLoc-sigLoc)
	_, err = f.ReadAt(blob, sigLoc)
	require.NoError(t, err)
	return blob, sigLoc
}

// VerifyV2 checks the APK Signature Scheme v2 block of a package, including
// the content digest
func VerifyV2(t testing.TB, path string) V2Signature {
	t.Helper()
	blob, sigLoc := SigningBlock(t, path)
	require.NotNil(t, blob, "package has no signing block")
	require.True(t, bytes.HasSuffix(blob, []byte(sigMagic)), "signing block magic")
	expected := uint64(len(blob) - 8)
	require.Equal(t, expected, binary.LittleEndian.Uint64(blob), "leading size")
	require.Equal(t, expected, binary.LittleEndian.Uint64(blob[len(blob)-24:]), "trailing size")
	pairs := blob[8 : len(blob)-24]
	var v2 []byte
	for len(pairs) > 0 {
		require.GreaterOrEqual(t, len(pairs), 12)
		size := binary.LittleEndian.Uint64(pairs)
		pairs = pairs[8:]
		require.LessOrEqual(t, size, uint64(len(pairs)))
		if binary.LittleEndian.Uint32(pairs) == sigApkV2 {
			v2 = pairs[4:size]
		}
		pairs = pairs[size:]
	}
	require.NotNil(t, v2, "no v2 signature in signing block")

	signers := splitExact(t, v2, 1)
	signerList := split(t, signers[0])
	require.Len(t, signerList, 1)
	members := splitExact(t, signerList[0], 3)
	signedData, signatures, spki := members[0], split(t, members[1]), members[2]
	pub, err := x509.ParsePKIXPublicKey(spki)
	require.NoError(t, err)

	sdMembers := splitExact(t, signedData, 3)
	digests := split(t, sdMembers[0])
	certs := split(t, sdMembers[1])
	require.NotEmpty(t, certs)
	leaf, err := x509.ParseCertificate(certs[0])
	require.NoError(t, err)
	require.True(t, bytes.Equal(leaf.RawSubjectPublicKeyInfo, spki), "public key matches leaf")

	require.NotEmpty(t, signatures)
	var alg uint32
	for _, sig := range signatures {
		id, value := parseAlg(t, sig)
		hash, ok := sigHashes[id]
		require.True(t, ok, "unknown signature algorithm 0x%04x", id)
		d := hash.New()
		d.Write(signedData)
		require.NoError(t, x509tools.Verify(pub, hash, d.Sum(nil), value), "signature over signed data")
		alg = id
	}
	require.NotEmpty(t, digests)
	for _, digest := range digests {
		id, value := parseAlg(t, digest)
		actual := ContentDigest(t, path, sigHashes[id])
		require.True(t, hmac.Equal(value, actual), "content digest for 0x%04x", id)
	}
	return V2Signature{Algorithm: alg, Certificate: leaf, Offset: sigLoc, Size: int64(len(blob))}
}

// ContentDigest computes the v2 content digest of a signed package directly
// from the file
func ContentDigest(t testing.TB, path string, hash crypto.Hash) []byte {
	t.Helper()
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	inz, err := zipslicer.Read(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	sigLoc, err := inz.NextFileOffset()
	require.NoError(t, err)
	endLoc := int64(len(blob)) - zipslicer.DirectoryEndLen
	eocd := append([]byte(nil), blob[endLoc:]...)
	binary.LittleEndian.PutUint32(eocd[zipslicer.DirectoryOffsetField:], uint32(sigLoc))
	var chunks []byte
	var count uint32
	for _, section := range [][]byte{blob[:sigLoc], blob[inz.DirLoc:endLoc], eocd} {
		for len(section) > 0 {
			n := len(section)
			if n > 1<<20 {
				n = 1 << 20
			}
			var pref [5]byte
			pref[0] = 0xa5
			binary.LittleEndian.PutUint32(pref[1:], uint32(n))
			d := hash.New()
			d.Write(pref[:])
			d.Write(section[:n])
			chunks = d.Sum(chunks)
			count++
			section = section[n:]
		}
	}
	var pref [5]byte
	pref[0] = 0x5a
	binary.LittleEndian.PutUint32(pref[1:], count)
	d := hash.New()
	d.Write(pref[:])
	d.Write(chunks)
	return d.Sum(nil)
}

func parseAlg(t testing.TB, blob []byte) (uint32, []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(blob), 4)
	id := binary.LittleEndian.Uint32(blob)
	return id, splitExact(t, blob[4:], 1)[0]
}

func split(t testing.TB, blob []byte) (ret [][]byte) {
	t.Helper()
	for len(blob) > 0 {
		require.GreaterOrEqual(t, len(blob), 4, io.ErrUnexpectedEOF)
		size := binary.LittleEndian.Uint32(blob)
		blob = blob[4:]
		require.LessOrEqual(t, int(size), len(blob), io.ErrUnexpectedEOF)
		ret = append(ret, blob[:size])
		blob = blob[size:]
	}
	return
}

func splitExact(t testing.TB, blob []byte, count int) [][]byte {
	t.Helper()
	ret := split(t, blob)
	require.Len(t, ret, count)
	return ret
}
