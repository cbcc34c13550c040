// Package tls implements the TLS expiry check's certificate verifier:
// a verifier that always fails the handshake on purpose, smuggling the
// parsed certificate state out through the error it returns because
// Go's tls package — like the rustls-based original this behavior is
// ported from — gives no other hook to inspect a peer's certificate
// chain without first completing the handshake.
package tls

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"time"
)

// UnexpectedErrorPrefix marks an error returned by VerifyPeerCertificate
// whose remainder is a JSON-encoded PeerState, as opposed to a genuine
// verification failure (which would mean the handshake itself could
// not proceed at all, e.g. no certificate presented).
const UnexpectedErrorPrefix = "unexpected error: "

// PeerState is everything the TLS check needs from the handshake,
// smuggled out via the verifier's returned error.
type PeerState struct {
	CertNameMatches      bool      `json:"cert_name_matches"`
	EndCertExpiry        time.Time `json:"end_cert_expiry"`
	IntermediateExpired  bool      `json:"intermediate_expired"`
	IntermediateUntrusted bool     `json:"intermediate_untrusted"`
	ServerName           string    `json:"servername"`
}

// Verifier plays the role of a custom ServerCertVerifier: it is
// installed as tls.Config.VerifyPeerCertificate and InsecureSkipVerify
// is set so the stdlib's own verification never runs first — this
// verifier is the only check performed, and it always returns an
// error, by design, so the handshake never completes and the runner
// recovers the state from the error instead of a live connection.
type Verifier struct {
	ServerName string
}

// Verify parses rawCerts (as passed by tls.Config.VerifyPeerCertificate)
// and returns an error whose message is UnexpectedErrorPrefix followed
// by the JSON-encoded PeerState. A Go implementation is free to return
// the parsed PeerState directly instead of round-tripping it through
// an error string — this package preserves the sentinel-string
// protocol only to stay byte-for-byte faithful to the original
// verifier's wire contract described in the design notes.
func (v Verifier) Verify(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	state := PeerState{ServerName: v.ServerName}

	if len(rawCerts) == 0 {
		return fmt.Errorf("tls: no certificate presented")
	}

	leaf, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("tls: parse leaf certificate: %w", err)
	}
	state.EndCertExpiry = leaf.NotAfter
	state.CertNameMatches = leaf.VerifyHostname(v.ServerName) == nil

	if len(rawCerts) > 1 {
		intermediate, err := x509.ParseCertificate(rawCerts[1])
		if err == nil {
			state.IntermediateExpired = time.Now().After(intermediate.NotAfter)
		}
		state.IntermediateUntrusted = !verifiesAgainstSystemRoots(leaf, rawCerts[1:])
	}

	payload, merr := json.Marshal(state)
	if merr != nil {
		return fmt.Errorf("tls: marshal peer state: %w", merr)
	}
	return fmt.Errorf("%s%s", UnexpectedErrorPrefix, payload)
}

func verifiesAgainstSystemRoots(leaf *x509.Certificate, intermediateDER [][]byte) bool {
	roots, err := x509.SystemCertPool()
	if err != nil || roots == nil {
		return false
	}
	intermediates := x509.NewCertPool()
	for _, der := range intermediateDER {
		if cert, err := x509.ParseCertificate(der); err == nil {
			intermediates.AddCert(cert)
		}
	}
	_, err = leaf.Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
	return err == nil
}

// ParseSentinel decodes a handshake error produced by Verify back into
// a PeerState, reporting ok=false if err does not carry the sentinel
// prefix (a genuine transport or handshake failure, not a smuggled
// state).
func ParseSentinel(err error) (state PeerState, ok bool) {
	if err == nil {
		return PeerState{}, false
	}
	msg := err.Error()
	if len(msg) < len(UnexpectedErrorPrefix) || msg[:len(UnexpectedErrorPrefix)] != UnexpectedErrorPrefix {
		return PeerState{}, false
	}
	if jerr := json.Unmarshal([]byte(msg[len(UnexpectedErrorPrefix):]), &state); jerr != nil {
		return PeerState{}, false
	}
	return state, true
}
