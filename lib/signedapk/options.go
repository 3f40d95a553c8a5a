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
	"crypto"
	"crypto/x509"

	"github.com/rs/zerolog"

	"github.com/sassoftware/apkseal/lib/apksig"
)

// Options configures a signing session. They are copied by New and not
// consulted again afterwards.
type Options struct {
	PrivateKey crypto.Signer
	// Certificates is the signer's chain, leaf first
	Certificates []*x509.Certificate

	V1Enabled bool
	V2Enabled bool

	// CreatedBy and BuiltBy are written to a newly created manifest. Empty
	// values are left out.
	CreatedBy string
	BuiltBy   string
	// TrustManifest keeps a manifest already present in the archive instead
	// of replacing it with a new one
	TrustManifest bool
	// MinSdkVersion is the oldest Android API level the package supports,
	// which decides the JAR digest algorithm
	MinSdkVersion int
	// Executor runs V2 digest tasks. Defaults to apksig.Sequential.
	Executor apksig.Executor
	// KeyAlias is the base name of the signature file and block, default CERT
	KeyAlias string

	Logger *zerolog.Logger
}

func (o Options) engineConfig() apksig.Config {
	return apksig.Config{
		PrivateKey:    o.PrivateKey,
		Certificates:  append([]*x509.Certificate(nil), o.Certificates...),
		V1Enabled:     o.V1Enabled,
		V2Enabled:     o.V2Enabled,
		CreatedBy:     o.CreatedBy,
		MinSdkVersion: o.MinSdkVersion,
		KeyAlias:      o.KeyAlias,
		Executor:      o.Executor,
		Logger:        o.Logger,
	}
}
