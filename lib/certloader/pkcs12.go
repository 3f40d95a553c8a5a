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

package certloader

import (
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/sassoftware/apkseal/lib/passprompt"
)

// ErrAborted is returned when an empty password is given at the prompt
var ErrAborted = errors.New("certloader: PKCS#12 password entry aborted")

// ParsePKCS12 decodes a PKCS#12 bundle. A bundle without a password opens
// directly. Otherwise the prompt is asked again until the password is right
// or nothing is entered.
func ParsePKCS12(blob []byte, prompt passprompt.PasswordGetter) (*Certificate, error) {
	cert, err := decodePKCS12(blob, "")
	for errors.Is(err, pkcs12.ErrIncorrectPassword) {
		password, perr := prompt.GetPasswd("Password for PKCS#12: ")
		if perr != nil {
			return nil, fmt.Errorf("certloader: reading PKCS#12 password: %w", perr)
		} else if password == "" {
			return nil, ErrAborted
		}
		cert, err = decodePKCS12(blob, password)
	}
	if err != nil {
		return nil, fmt.Errorf("certloader: decoding PKCS#12: %w", err)
	}
	return cert, nil
}

func decodePKCS12(blob []byte, password string) (*Certificate, error) {
	priv, leaf, chain, err := pkcs12.DecodeChain(blob, password)
	if err != nil {
		return nil, err
	}
	return &Certificate{
		PrivateKey:   priv,
		Leaf:         leaf,
		Certificates: append([]*x509.Certificate{leaf}, chain...),
	}, nil
}

// LoadPKCS12 reads and decodes a PKCS#12 file
func LoadPKCS12(path string, prompt passprompt.PasswordGetter) (*Certificate, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cert, err := ParsePKCS12(blob, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cert, nil
}
