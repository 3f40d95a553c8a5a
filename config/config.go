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

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type SigningConfig struct {
	// PEM private key and certificate chain, leaf first
	KeyFile  string `yaml:"key_file"`
	CertFile string `yaml:"cert_file"`
	// Key and chain in one file, instead of the above
	PKCS12File string `yaml:"pkcs12_file"`
	// Base name of the JAR signature files
	KeyAlias string `yaml:"key_alias"`
	// JAR signature and APK Signature Scheme v2, both on unless set to false
	V1 *bool `yaml:"v1"`
	V2 *bool `yaml:"v2"`
	// Written to newly created manifests
	CreatedBy     string `yaml:"created_by"`
	BuiltBy       string `yaml:"built_by"`
	MinSdkVersion int    `yaml:"min_sdk_version"`
	// Keep a manifest already in the package
	TrustManifest bool `yaml:"trust_manifest"`
	// Concurrent digest tasks, 0 for sequential
	Parallelism int `yaml:"parallelism"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// "" for console, "-" for JSON to stderr, else a JSON log file
	File string `yaml:"file"`
}

type Config struct {
	Signing SigningConfig `yaml:"signing"`
	Logging LoggingConfig `yaml:"logging"`

	path string
}

// ReadFile loads and validates a configuration file. Unknown keys are an
// error.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.path = path
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Path returns the file the configuration was read from, if any
func (config *Config) Path() string {
	return config.path
}

func (config *Config) Validate() error {
	s := &config.Signing
	if s.PKCS12File != "" && (s.KeyFile != "" || s.CertFile != "") {
		return errors.New("signing.pkcs12_file cannot be combined with signing.key_file or signing.cert_file")
	}
	if (s.KeyFile == "") != (s.CertFile == "") {
		return errors.New("signing.key_file and signing.cert_file must be set together")
	}
	if s.MinSdkVersion < 0 {
		return fmt.Errorf("signing.min_sdk_version: invalid value %d", s.MinSdkVersion)
	}
	if s.Parallelism < 0 {
		return fmt.Errorf("signing.parallelism: invalid value %d", s.Parallelism)
	}
	if !s.V1Enabled() && !s.V2Enabled() {
		return errors.New("signing: at least one of v1 and v2 must be enabled")
	}
	switch config.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", config.Logging.Level)
	}
	return nil
}

func (s *SigningConfig) V1Enabled() bool {
	return s.V1 == nil || *s.V1
}

func (s *SigningConfig) V2Enabled() bool {
	return s.V2 == nil || *s.V2
}
