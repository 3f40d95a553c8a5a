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

package pkcs7

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/sassoftware/apkseal/lib/x509tools"
)

// Unmarshal parses a DER-encoded SignedData
func Unmarshal(der []byte) (*SignedData, error) {
	var psd ContentInfoSignedData
	if rest, err := asn1.Unmarshal(der, &psd); err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	} else if len(bytes.TrimRight(rest, "\x00")) != 0 {
		return nil, errors.New("pkcs7: trailing garbage after SignedData")
	}
	if !psd.ContentType.Equal(OidSignedData) {
		return nil, fmt.Errorf("pkcs7: unexpected content type %s", psd.ContentType)
	}
	return &psd.Content, nil
}

// VerifyDetached checks every signer of a detached SignedData against the
// given content and returns the certificate of the first signer
func VerifyDetached(der, content []byte) (*x509.Certificate, error) {
	sd, err := Unmarshal(der)
	if err != nil {
		return nil, err
	}
	certs, err := sd.Certificates.Parse()
	if err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	} else if len(certs) == 0 {
		return nil, errors.New("pkcs7: certificate missing from signedData")
	}
	if len(sd.SignerInfos) == 0 {
		return nil, errors.New("pkcs7: no signers")
	}
	var first *x509.Certificate
	for _, si := range sd.SignerInfos {
		cert, err := si.Verify(content, certs)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = cert
		}
	}
	return first, nil
}

// Verify the signer's digest over content and return the matching certificate
func (si *SignerInfo) Verify(content []byte, certs []*x509.Certificate) (*x509.Certificate, error) {
	hash, ok := x509tools.PkixDigestToHash(si.DigestAlgorithm)
	if !ok || !hash.Available() {
		return nil, fmt.Errorf("pkcs7: unknown hash with OID %s", si.DigestAlgorithm.Algorithm)
	}
	w := hash.New()
	w.Write(content)
	digest := w.Sum(nil)
	var cert *x509.Certificate
	is := si.IssuerAndSerialNumber
	for _, cert2 := range certs {
		if bytes.Equal(cert2.RawIssuer, is.IssuerName.FullBytes) && cert2.SerialNumber.Cmp(is.SerialNumber) == 0 {
			cert = cert2
			break
		}
	}
	if cert == nil {
		return nil, errors.New("pkcs7: certificate missing from signedData")
	}
	if err := x509tools.Verify(cert.PublicKey, hash, digest, si.EncryptedDigest); err != nil {
		return nil, fmt.Errorf("pkcs7: %w", err)
	}
	return cert, nil
}
