package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, commonName string, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestVerifyAlwaysFailsAndSmugglesPeerState(t *testing.T) {
	expiry := time.Now().Add(30 * 24 * time.Hour)
	der := selfSignedCert(t, "example.internal", expiry)

	v := Verifier{ServerName: "example.internal"}
	err := v.Verify([][]byte{der}, nil)
	require.Error(t, err)

	state, ok := ParseSentinel(err)
	require.True(t, ok)
	assert.True(t, state.CertNameMatches)
	assert.WithinDuration(t, expiry, state.EndCertExpiry, time.Second)
}

func TestVerifyRejectsWrongHostname(t *testing.T) {
	der := selfSignedCert(t, "other.internal", time.Now().Add(time.Hour))

	v := Verifier{ServerName: "example.internal"}
	err := v.Verify([][]byte{der}, nil)
	require.Error(t, err)

	state, ok := ParseSentinel(err)
	require.True(t, ok)
	assert.False(t, state.CertNameMatches)
}

func TestVerifyNoCertificatePresented(t *testing.T) {
	v := Verifier{ServerName: "example.internal"}
	err := v.Verify(nil, nil)
	require.Error(t, err)

	_, ok := ParseSentinel(err)
	assert.False(t, ok, "a genuine handshake failure must not parse as a smuggled PeerState")
}

func TestParseSentinelRejectsUnrelatedError(t *testing.T) {
	_, ok := ParseSentinel(assertError("connection reset by peer"))
	assert.False(t, ok)
}

type plainError string

func (e plainError) Error() string { return string(e) }

func assertError(msg string) error { return plainError(msg) }
