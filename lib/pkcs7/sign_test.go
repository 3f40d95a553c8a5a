package pkcs7

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, key crypto.Signer) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "test signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestSignDetached(t *testing.T) {
	t.Parallel()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	content := []byte("Signature-Version: 1.0\r\n\r\n")
	for _, key := range []crypto.Signer{rsaKey, ecKey} {
		cert := selfSigned(t, key)
		for _, hash := range []crypto.Hash{crypto.SHA1, crypto.SHA256} {
			der, err := SignDetached(content, key, []*x509.Certificate{cert}, hash)
			require.NoError(t, err)
			signer, err := VerifyDetached(der, content)
			require.NoError(t, err)
			assert.Equal(t, cert.Raw, signer.Raw)
			_, err = VerifyDetached(der, []byte("tampered"))
			assert.Error(t, err)
		}
	}
}

func TestSignWrongCert(t *testing.T) {
	t.Parallel()
	key1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key2, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	_, err = SignDetached([]byte("x"), key1, []*x509.Certificate{selfSigned(t, key2)}, crypto.SHA256)
	assert.Error(t, err)
	_, err = SignDetached([]byte("x"), key1, nil, crypto.SHA256)
	assert.Error(t, err)
}
