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
	"crypto/x509"
	"fmt"

	"github.com/sassoftware/apkseal/lib/x509tools"
)

const (
	sigMagic = "APK Sig Block 42"
	sigApkV2 = 0x7109871a

	// contents are digested in chunks of this size
	chunkSize = 1 << 20
)

type apkSigner struct {
	SignedData rawValue
	Signatures []apkAttribute
	PublicKey  []byte
}

type apkSignedData struct {
	Digests      []apkAttribute
	Certificates [][]byte
	Attributes   []apkAttribute
}

// apkAttribute is an ID-value pair, used for digests and signatures as well
type apkAttribute struct {
	ID    uint32
	Value []byte
}

type sigType struct {
	id   uint32
	hash crypto.Hash
	alg  x509.PublicKeyAlgorithm
}

var sigTypes = []sigType{
	{0x0103, crypto.SHA256, x509.RSA},   // RSASSA-PKCS1-v1_5 with SHA2-256 digest
	{0x0104, crypto.SHA512, x509.RSA},   // RSASSA-PKCS1-v1_5 with SHA2-512 digest
	{0x0201, crypto.SHA256, x509.ECDSA}, // ECDSA with SHA2-256 digest
	{0x0202, crypto.SHA512, x509.ECDSA}, // ECDSA with SHA2-512 digest
	{0x0301, crypto.SHA256, x509.DSA},   // DSA with SHA2-256 digest
}

func sigTypeByID(id uint32) (sigType, error) {
	for _, s := range sigTypes {
		if s.id == id {
			return s, nil
		}
	}
	return sigType{}, fmt.Errorf("apksig: unknown signature type 0x%04x", id)
}

// choose the signature algorithm for a key. Larger keys get SHA-512 so the
// digest is not the weakest link.
func sigTypeForKey(pub crypto.PublicKey) (sigType, error) {
	bits, err := x509tools.KeyBits(pub)
	if err != nil {
		return sigType{}, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	var id uint32
	switch pubAlgorithm(pub) {
	case x509.RSA:
		id = 0x0103
		if bits > 3072 {
			id = 0x0104
		}
	case x509.ECDSA:
		id = 0x0201
		if bits > 256 {
			id = 0x0202
		}
	case x509.DSA:
		id = 0x0301
	default:
		return sigType{}, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
	return sigTypeByID(id)
}
