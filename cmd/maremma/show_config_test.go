package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// whatever was written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = old

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestShowConfigPrintsEffectiveConfiguration(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "maremma.json")
	require.NoError(t, os.WriteFile(configPath, []byte(testConfigJSON), 0o644))

	rootCmd.SetArgs([]string{"show-config", "--config", configPath})
	output := captureStdout(t, func() {
		require.NoError(t, rootCmd.Execute())
	})

	assert.Contains(t, output, "web-01")
	assert.Contains(t, output, "DatabaseFile")
}
