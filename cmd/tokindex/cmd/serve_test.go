package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/logging"
)

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd()
	assert.NotNil(t, cmd.Flags().Lookup("transport"))
	assert.NotNil(t, cmd.Flags().Lookup("index"))
}

func TestServeCmd_UnknownTransport(t *testing.T) {
	// Given: a project (the index is not required to start)
	newProject(t)

	// When: serving over an unsupported transport
	stdout, _, err := execute(t, "serve", "--transport", "http")

	// Then: startup fails with a config error and stdout stays clean
	require.Error(t, err)
	assert.Equal(t, tkerrors.ErrCodeConfigInvalid, tkerrors.GetCode(err))
	assert.Empty(t, stdout)

	// and the attempt is logged to the file
	data, readErr := os.ReadFile(logging.DefaultLogPath())
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "Starting MCP server")
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".tokindex", "logs"), logging.DefaultLogDir())
}
