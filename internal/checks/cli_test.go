package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maremma/maremma/internal/store"
)

func TestCLIRunnerExitZeroIsOK(t *testing.T) {
	target := Target{ExtraConfig: map[string]any{"command_line": "true"}}
	result, err := (CLIRunner{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, result.Status)
}

func TestCLIRunnerNonZeroExitIsCritical(t *testing.T) {
	target := Target{ExtraConfig: map[string]any{"command_line": "false"}}
	result, err := (CLIRunner{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCritical, result.Status)
}

func TestCLIRunnerEmptyCommandLineIsError(t *testing.T) {
	target := Target{ExtraConfig: map[string]any{}}
	result, err := (CLIRunner{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, result.Status)
}

func TestCLIRunnerCapturesOutput(t *testing.T) {
	target := Target{ExtraConfig: map[string]any{"command_line": "echo hello-maremma"}}
	result, err := (CLIRunner{}).Run(context.Background(), target)
	require.NoError(t, err)
	assert.Contains(t, result.ResultText, "hello-maremma")
}
