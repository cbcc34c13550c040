package checks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	checktls "github.com/maremma/maremma/internal/checks/tls"
	"github.com/maremma/maremma/internal/store"
)

func TestClassifyPeerStateDefaultThresholdsAllowDistantExpiry(t *testing.T) {
	state := checktls.PeerState{
		CertNameMatches: true,
		EndCertExpiry:   time.Now().Add(10 * 24 * time.Hour),
	}

	result := classifyPeerState(state, "example.internal", time.Now(), 0, 1)
	assert.Equal(t, store.StatusOK, result.Status)
}

func TestClassifyPeerStateDefaultCriticalAtZeroDays(t *testing.T) {
	state := checktls.PeerState{
		CertNameMatches: true,
		EndCertExpiry:   time.Now().Add(12 * time.Hour),
	}

	result := classifyPeerState(state, "example.internal", time.Now(), 0, 1)
	assert.Equal(t, store.StatusCritical, result.Status)
}

func TestClassifyPeerStateNameMismatchIsAlwaysCritical(t *testing.T) {
	state := checktls.PeerState{
		CertNameMatches: false,
		EndCertExpiry:   time.Now().Add(365 * 24 * time.Hour),
	}

	result := classifyPeerState(state, "example.internal", time.Now(), 0, 1)
	assert.Equal(t, store.StatusCritical, result.Status)
	assert.Contains(t, result.ResultText, "does not match")
}
