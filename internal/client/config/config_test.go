package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, MinChunkSize, c.ChunkSize)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
}

func TestLoadConfig_ClampsChunkSize(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("GOPHDRIVE_CONFIG", "")

	os.Args = []string{"testbin", "-k", "1"}
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, MinChunkSize, cfg.ChunkSize)
}
