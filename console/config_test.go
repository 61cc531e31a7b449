package console

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, uint32(24+256), cfg.minMsize())
	assert.Equal(t, uint32(24+8192), cfg.maxMsize())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gconsole.yaml")
	err := os.WriteFile(path, []byte(`
listen: unix:/tmp/cons.sock
program: /bin/sh -i
input_buffer: 64
blind: true
`), 0644)
	require.NoError(t, err)

	t.Setenv("GCONSOLE_BLIND", "false")
	t.Setenv("GCONSOLE_OUTPUT_BUFFER", "512")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "unix:/tmp/cons.sock", cfg.Listen)
	assert.Equal(t, "/bin/sh -i", cfg.Program)
	assert.Equal(t, 64, cfg.InputBuffer)
	assert.Equal(t, 512, cfg.OutputBuffer)
	assert.False(t, cfg.Blind)
	assert.Equal(t, 1024, cfg.MaxHandles, "unset keys keep their default")
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("GCONSOLE_DEBUG", "sometimes")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "GCONSOLE_DEBUG")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputBuffer = MaxData + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.InputBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxPending = -1
	assert.Error(t, cfg.Validate())
}
