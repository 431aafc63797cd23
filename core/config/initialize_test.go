package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tempDir := t.TempDir()
	if _, err := Initialize(tempDir, log.New(io.Discard)); err != nil {
		t.Fatal(err)
	}

	// Check that the config is valid
	cfg, err := Load(filepath.Join(tempDir, ConfigurationName))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("OpenEventLog", func(t *testing.T) {
		fd, err := cfg.OpenEventLog()
		assert.Nil(t, err)
		fd.Close()

		_, err = os.Stat(filepath.Join(tempDir, cfg.EventLog))
		assert.Nil(t, err)
	})

	t.Run("HistoryPath", func(t *testing.T) {
		assert.Equal(t, filepath.Join(tempDir, "history.txt"), cfg.HistoryPath())
	})

	t.Run("InitializeTwice", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, ConfigurationName), []byte("prompt: custom\n"), 0600))
		_, err := Initialize(tempDir, log.New(io.Discard))
		// The existing file is kept, and it is missing required fields.
		assert.Error(t, err)
	})
}

func TestLoadFsRejectsUnknownFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, InitializeFs(fs, log.New(io.Discard)))

	cfg, err := LoadFs(fs)
	require.NoError(t, err)
	assert.Equal(t, "> ", cfg.Prompt)

	require.NoError(t, afero.WriteFile(fs, ConfigurationName, []byte("ssh_port: 22\n"), 0600))
	_, err = LoadFs(fs)
	assert.Error(t, err)
}
