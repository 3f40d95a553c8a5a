package signcmd

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkseal/config"
	"github.com/sassoftware/apkseal/internal/apktest"
	"github.com/sassoftware/apkseal/lib/certloader"
	"github.com/sassoftware/apkseal/lib/signjar"
	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	addFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestMergeFlags(t *testing.T) {
	yes := true
	file := config.SigningConfig{
		PKCS12File:    "release.p12",
		KeyAlias:      "RELEASE",
		V1:            &yes,
		MinSdkVersion: 14,
		CreatedBy:     "from config",
	}
	flags := parseFlags(t, "--key", "k.pem", "--cert", "c.pem", "--no-v1", "--min-sdk", "24")
	cfg, err := mergeFlags(flags, file)
	require.NoError(t, err)
	assert.Equal(t, "k.pem", cfg.KeyFile)
	assert.Empty(t, cfg.PKCS12File, "command line key replaces the configured one")
	assert.Equal(t, "RELEASE", cfg.KeyAlias)
	assert.False(t, cfg.V1Enabled())
	assert.True(t, cfg.V2Enabled())
	assert.Equal(t, 24, cfg.MinSdkVersion)
	assert.Equal(t, "from config", cfg.CreatedBy)

	_, err = mergeFlags(parseFlags(t, "--key", "k.pem", "--cert", "c.pem", "--no-v1", "--no-v2"), file)
	assert.Error(t, err, "nothing to do")
	_, err = mergeFlags(parseFlags(t), config.SigningConfig{})
	assert.ErrorContains(t, err, "required")
}

func writeInput(t *testing.T, path string) {
	t.Helper()
	a, err := ziparchive.Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Add(ziparchive.Entry{Name: "AndroidManifest.xml", Content: []byte("<manifest/>"), Method: zipslicer.Deflate}))
	require.NoError(t, a.Add(ziparchive.Entry{Name: "classes.dex", Content: []byte("dex\n035\x00"), Method: zipslicer.Deflate}))
	require.NoError(t, a.Close())
}

func loadTestKey(t *testing.T, dir string) *certloader.Certificate {
	t.Helper()
	key, certs := apktest.NewSigner(t, apktest.P256)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certs[0].Raw}), 0o644))
	cert, err := loadKey(config.SigningConfig{KeyFile: keyPath, CertFile: certPath})
	require.NoError(t, err)
	return cert
}

func TestSignFile(t *testing.T) {
	dir := t.TempDir()
	cert := loadTestKey(t, dir)
	input := filepath.Join(dir, "in.apk")
	output := filepath.Join(dir, "out.apk")
	writeInput(t, input)
	cfg := config.SigningConfig{MinSdkVersion: 24, CreatedBy: "apkseal test", Parallelism: 2}
	require.NoError(t, signFile(input, output, cert, cfg))
	v1 := apktest.VerifyV1(t, output)
	assert.Equal(t, "apkseal test", signjar.GetAttr(v1.Manifest.Main, "Created-By"))
	assert.Equal(t, "META-INF/CERT.EC", v1.SigBlockName)
	apktest.VerifyV2(t, output)

	// signing the result again in place replaces the signature
	cert2 := loadTestKey(t, t.TempDir())
	cfg.KeyAlias = "second"
	require.NoError(t, signFile(output, output, cert2, cfg))
	v1 = apktest.VerifyV1(t, output)
	assert.Equal(t, "META-INF/SECOND.SF", v1.SigFileName)
	v2 := apktest.VerifyV2(t, output)
	assert.True(t, v2.Certificate.Equal(cert2.Leaf))

	// and so does copying it with the manifest kept
	resigned := filepath.Join(dir, "resigned.apk")
	cfg.KeyAlias = ""
	cfg.TrustManifest = true
	require.NoError(t, signFile(output, resigned, cert, cfg))
	v1 = apktest.VerifyV1(t, resigned)
	assert.Equal(t, "META-INF/CERT.SF", v1.SigFileName)
	apktest.VerifyV2(t, resigned)
}
