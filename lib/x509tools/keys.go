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

package x509tools

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys are still found in old keystores
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

var ErrUnsupportedKey = errors.New("unsupported public key type")

// SameKey returns true if two public keys are identical
func SameKey(pub1, pub2 crypto.PublicKey) bool {
	switch key1 := pub1.(type) {
	case *rsa.PublicKey:
		key2, ok := pub2.(*rsa.PublicKey)
		return ok && key1.Equal(key2)
	case *ecdsa.PublicKey:
		key2, ok := pub2.(*ecdsa.PublicKey)
		return ok && key1.Equal(key2)
	case *dsa.PublicKey:
		key2, ok := pub2.(*dsa.PublicKey)
		return ok && key1.Y.Cmp(key2.Y) == 0 && key1.P.Cmp(key2.P) == 0 &&
			key1.Q.Cmp(key2.Q) == 0 && key1.G.Cmp(key2.G) == 0
	default:
		return false
	}
}

// KeyBits returns the size of a public key: the modulus length for RSA and
// DSA, or the curve order for ECDSA
func KeyBits(pub crypto.PublicKey) (int, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return key.N.BitLen(), nil
	case *ecdsa.PublicKey:
		return key.Curve.Params().BitSize, nil
	case *dsa.PublicKey:
		return key.P.BitLen(), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

type dsaSignature struct {
	R, S *big.Int
}

// Verify a signature over a digest. RSA uses PKCS#1 v1.5 padding, ECDSA and
// DSA signatures are ASN.1 encoded.
func Verify(pub crypto.PublicKey, hash crypto.Hash, digest, sig []byte) error {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(key, hash, digest, sig)
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return errors.New("ECDSA verification failed")
		}
		return nil
	case *dsa.PublicKey:
		var parsed dsaSignature
		if rest, err := asn1.Unmarshal(sig, &parsed); err != nil {
			return err
		} else if len(rest) != 0 {
			return errors.New("trailing garbage after DSA signature")
		}
		if len(digest) > key.Q.BitLen()/8 {
			digest = digest[:key.Q.BitLen()/8]
		}
		if !dsa.Verify(key, digest, parsed.R, parsed.S) {
			return errors.New("DSA verification failed")
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// MakeSerial returns a random certificate serial number
func MakeSerial() *big.Int {
	blob := make([]byte, 12)
	if n, err := rand.Reader.Read(blob); err != nil || n != len(blob) {
		return nil
	}
	return new(big.Int).SetBytes(blob)
}
