package certloader

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/sassoftware/apkseal/internal/apktest"
	"github.com/sassoftware/apkseal/lib/passprompt"
	"github.com/sassoftware/apkseal/lib/pkcs7"
	"github.com/sassoftware/apkseal/lib/x509tools"
)

func writePEM(t *testing.T, path, blockType string, der ...[]byte) {
	t.Helper()
	var out []byte
	for _, d := range der {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: d})...)
	}
	require.NoError(t, os.WriteFile(path, out, 0o600))
}

func TestLoadX509KeyPair(t *testing.T) {
	t.Parallel()
	for _, kind := range []apktest.KeyType{apktest.RSA2048, apktest.P256} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			key, certs := apktest.NewSigner(t, kind)
			der, err := x509.MarshalPKCS8PrivateKey(key)
			require.NoError(t, err)
			keyPath := filepath.Join(dir, "key.pem")
			certPath := filepath.Join(dir, "cert.pem")
			writePEM(t, keyPath, "PRIVATE KEY", der)
			writePEM(t, certPath, "CERTIFICATE", certs[0].Raw)

			cert, err := LoadX509KeyPair(certPath, keyPath)
			require.NoError(t, err)
			assert.True(t, cert.Leaf.Equal(certs[0]))
			signer, err := cert.Signer()
			require.NoError(t, err)
			assert.Equal(t, key.Public(), signer.Public())
			assert.Len(t, cert.Chain(), 1)

			// someone else's certificate
			_, others := apktest.NewSigner(t, kind)
			writePEM(t, certPath, "CERTIFICATE", others[0].Raw)
			_, err = LoadX509KeyPair(certPath, keyPath)
			assert.ErrorContains(t, err, "does not match")
		})
	}
}

func TestParseCertificates(t *testing.T) {
	t.Parallel()
	key, certs := apktest.NewSigner(t, apktest.P256)
	// bare DER
	cert, err := ParseCertificates(certs[0].Raw)
	require.NoError(t, err)
	assert.True(t, cert.Leaf.Equal(certs[0]))
	// PKCS#7 bundle
	p7, err := pkcs7.SignDetached([]byte("x"), key, certs, crypto.SHA256)
	require.NoError(t, err)
	cert, err = ParseCertificates(p7)
	require.NoError(t, err)
	assert.True(t, cert.Leaf.Equal(certs[0]))
	// nothing useful
	_, err = ParseCertificates([]byte("-----BEGIN NOTHING-----\n-----END NOTHING-----\n"))
	assert.ErrorIs(t, err, ErrNoCerts)
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()
	key, _ := apktest.NewSigner(t, apktest.RSA2048)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed, err := ParsePrivateKey(der)
	require.NoError(t, err)
	signer, ok := parsed.(crypto.Signer)
	require.True(t, ok)
	assert.True(t, x509tools.SameKey(key.Public(), signer.Public()))
	_, err = ParsePrivateKey([]byte("not a key"))
	assert.Error(t, err)
}

func TestLoadPKCS12(t *testing.T) {
	t.Parallel()
	key, certs := apktest.NewSigner(t, apktest.RSA2048)
	blob, err := pkcs12.Modern.Encode(key, certs[0], nil, "letmein")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.p12")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	cert, err := LoadPKCS12(path, &passprompt.Fixed{Password: "letmein"})
	require.NoError(t, err)
	assert.True(t, cert.Leaf.Equal(certs[0]))
	signer, err := cert.Signer()
	require.NoError(t, err)
	assert.Equal(t, key.Public(), signer.Public())

	_, err = LoadPKCS12(path, &passprompt.Fixed{Password: "wrong"})
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorContains(t, err, path)

	_, err = ParsePKCS12([]byte("not a bundle"), &passprompt.Fixed{})
	assert.ErrorContains(t, err, "certloader: decoding PKCS#12")
	assert.NotErrorIs(t, err, ErrAborted)
}
