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

// Package signcmd implements "apkseal sign"
package signcmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sassoftware/apkseal/cmdline/shared"
	"github.com/sassoftware/apkseal/config"
	"github.com/sassoftware/apkseal/lib/apksig"
	"github.com/sassoftware/apkseal/lib/certloader"
	"github.com/sassoftware/apkseal/lib/passprompt"
	"github.com/sassoftware/apkseal/lib/signedapk"
	"github.com/sassoftware/apkseal/lib/signjar"
	"github.com/sassoftware/apkseal/lib/x509tools"
	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

// PasswordEnv names the variable holding the PKCS#12 password for
// non-interactive use
const PasswordEnv = "APKSEAL_PKCS12_PASSWORD"

var SignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an APK with the JAR and v2 signature schemes",
	RunE:  signCmd,
}

var (
	argInput         string
	argOutput        string
	argKey           string
	argCert          string
	argPKCS12        string
	argNoV1          bool
	argNoV2          bool
	argMinSdk        int
	argAlias         string
	argCreatedBy     string
	argBuiltBy       string
	argTrustManifest bool
	argParallelism   int
)

func init() {
	shared.RootCmd.AddCommand(SignCmd)
	addFlags(SignCmd.Flags())
}

func addFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&argInput, "input", "i", "", "Package to sign")
	flags.StringVarP(&argOutput, "output", "o", "", "Signed package to write. Defaults to the input.")
	flags.StringVar(&argKey, "key", "", "PEM private key")
	flags.StringVar(&argCert, "cert", "", "Certificate chain for --key, leaf first")
	flags.StringVar(&argPKCS12, "pkcs12", "", "PKCS#12 file holding the key and chain. The password is read from $"+PasswordEnv+" or prompted for.")
	flags.StringVar(&argAlias, "key-alias", "", "Base name of the JAR signature files (default CERT)")
	flags.BoolVar(&argNoV1, "no-v1", false, "Don't add a JAR signature")
	flags.BoolVar(&argNoV2, "no-v2", false, "Don't add an APK Signature Scheme v2 block")
	flags.IntVar(&argMinSdk, "min-sdk", 0, "Oldest Android API level the package supports")
	flags.StringVar(&argCreatedBy, "created-by", "", "Created-By value for a new manifest")
	flags.StringVar(&argBuiltBy, "built-by", "", "Built-By value for a new manifest")
	flags.BoolVar(&argTrustManifest, "trust-manifest", false, "Keep the package's existing manifest")
	flags.IntVar(&argParallelism, "parallelism", 0, "Digest up to this many sections at once")
}

// mergeFlags overlays the options given on the command line onto the
// configuration file
func mergeFlags(flags *pflag.FlagSet, cfg config.SigningConfig) (config.SigningConfig, error) {
	if argPKCS12 != "" {
		cfg.PKCS12File = argPKCS12
		cfg.KeyFile, cfg.CertFile = "", ""
	}
	if argKey != "" || argCert != "" {
		cfg.KeyFile, cfg.CertFile = argKey, argCert
		if argPKCS12 == "" {
			cfg.PKCS12File = ""
		}
	}
	if flags.Changed("key-alias") {
		cfg.KeyAlias = argAlias
	}
	if argNoV1 {
		cfg.V1 = new(bool)
	}
	if argNoV2 {
		cfg.V2 = new(bool)
	}
	if flags.Changed("min-sdk") {
		cfg.MinSdkVersion = argMinSdk
	}
	if flags.Changed("created-by") {
		cfg.CreatedBy = argCreatedBy
	}
	if flags.Changed("built-by") {
		cfg.BuiltBy = argBuiltBy
	}
	if argTrustManifest {
		cfg.TrustManifest = true
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism = argParallelism
	}
	merged := config.Config{Signing: cfg}
	if err := merged.Validate(); err != nil {
		return cfg, err
	}
	if cfg.PKCS12File == "" && cfg.KeyFile == "" {
		return cfg, errors.New("--key and --cert, or --pkcs12, are required")
	}
	return cfg, nil
}

func loadKey(cfg config.SigningConfig) (*certloader.Certificate, error) {
	if cfg.PKCS12File != "" {
		return certloader.LoadPKCS12(cfg.PKCS12File, passprompt.FromEnv(PasswordEnv))
	}
	return certloader.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
}

func signCmd(cmd *cobra.Command, args []string) error {
	if argInput == "" {
		return errors.New("--input is required")
	}
	cfg, err := mergeFlags(cmd.Flags(), shared.CurrentConfig.Signing)
	if err != nil {
		return err
	}
	cert, err := loadKey(cfg)
	if err != nil {
		return shared.Fail(err)
	}
	log.Debug().
		Str("subject", x509tools.FormatSubject(cert.Leaf)).
		Str("issuer", x509tools.FormatIssuer(cert.Leaf)).
		Msg("loaded signing key")
	output := argOutput
	if output == "" {
		output = argInput
	}
	if err := signFile(argInput, output, cert, cfg); err != nil {
		return shared.Fail(err)
	}
	d, err := shared.DigestFile(output)
	if err != nil {
		return shared.Fail(err)
	}
	log.Info().Str("path", output).Stringer("digest", d).Msg("signed package written")
	return nil
}

func signFile(input, output string, cert *certloader.Certificate, cfg config.SigningConfig) error {
	signer, err := cert.Signer()
	if err != nil {
		return err
	}
	logger := log.Logger
	opts := signedapk.Options{
		PrivateKey:    signer,
		Certificates:  cert.Chain(),
		V1Enabled:     cfg.V1Enabled(),
		V2Enabled:     cfg.V2Enabled(),
		CreatedBy:     cfg.CreatedBy,
		BuiltBy:       cfg.BuiltBy,
		TrustManifest: cfg.TrustManifest,
		MinSdkVersion: cfg.MinSdkVersion,
		KeyAlias:      cfg.KeyAlias,
		Executor:      apksig.ParallelExecutor(cfg.Parallelism),
		Logger:        &logger,
	}
	if samePath(input, output) {
		// the archive picks up the existing entries itself
		archive, err := ziparchive.Open(output, ziparchive.WithLogger(logger))
		if err != nil {
			return err
		}
		pkg, err := signedapk.New(archive, opts)
		if err != nil {
			return err
		}
		return pkg.Close()
	}

	infile, err := os.Open(input)
	if err != nil {
		return err
	}
	defer infile.Close()
	st, err := infile.Stat()
	if err != nil {
		return err
	}
	inz, err := zipslicer.Read(infile, st.Size())
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}
	archive, err := ziparchive.Open(output, ziparchive.WithTruncate(), ziparchive.WithLogger(logger))
	if err != nil {
		return err
	}
	if opts.TrustManifest {
		// the manifest has to be present when signing starts
		if _, err := archive.AddFromZip(inz, nil); err != nil {
			archive.Close()
			return err
		}
	}
	pkg, err := signedapk.New(archive, opts)
	if err != nil {
		return err
	}
	if !opts.TrustManifest {
		// previous signatures are replaced, not carried over
		filter := func(name string) bool { return !signjar.IsSignatureFile(name) }
		if _, err := pkg.AddFromZip(inz, filter); err != nil {
			return errors.Join(err, pkg.Close())
		}
	}
	return pkg.Close()
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	sta, err := os.Stat(a)
	if err != nil {
		return false
	}
	stb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sta, stb)
}
