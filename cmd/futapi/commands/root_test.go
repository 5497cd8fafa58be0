package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"futapi/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteContextReturnsError(t *testing.T) {
	t.Setenv("FUT_EMAIL", "")
	t.Setenv("FUT_PASSWORD", "")
	t.Setenv("FUT_SECRET", "")

	var stderr bytes.Buffer
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"credits", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	t.Cleanup(func() {
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		envFile = ""
	})

	err := ExecuteContext(context.Background())
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Equal(t, config.ErrMissingCredentials.Error()+"\n", stderr.String())
}
