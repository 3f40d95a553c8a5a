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

package signjar

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA keys are still found in old keystores
	"crypto/ecdsa"
	"crypto/rsa"
	"path"
	"strings"
)

const DefaultAlias = "CERT"

// IsSignatureFile returns true for META-INF entries that belong to a JAR
// signature and so are never themselves digested
func IsSignatureFile(name string) bool {
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, MetaInf) || strings.Contains(upper[len(MetaInf):], "/") {
		return false
	}
	if upper == ManifestName {
		return true
	}
	base := upper[len(MetaInf):]
	if strings.HasPrefix(base, "SIG-") {
		return true
	}
	switch path.Ext(base) {
	case ".SF", ".RSA", ".DSA", ".EC":
		return true
	}
	return false
}

// SanitizeAlias turns a key alias into the base name of the signature
// files. JAR signature names are limited to 8 characters from [A-Z0-9_-].
func SanitizeAlias(alias string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(alias) {
		if b.Len() >= 8 {
			break
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return DefaultAlias
	}
	return b.String()
}

// SignatureNames returns the paths of the signature file and signature block
// for the given alias and key
func SignatureNames(alias string, pub crypto.PublicKey) (sigFile, sigBlock string) {
	base := MetaInf + SanitizeAlias(alias)
	switch pub.(type) {
	case *rsa.PublicKey:
		return base + ".SF", base + ".RSA"
	case *ecdsa.PublicKey:
		return base + ".SF", base + ".EC"
	case *dsa.PublicKey:
		return base + ".SF", base + ".DSA"
	default:
		base = MetaInf + "SIG-" + SanitizeAlias(alias)
		return base + ".SF", base + ".SIG"
	}
}
