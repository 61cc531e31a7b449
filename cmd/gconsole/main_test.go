package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/keaganluttrell/gconsole/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramArgs(t *testing.T) {
	cfg := console.DefaultConfig()

	argv, err := programArgs(cfg, []string{"rc", "-i"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rc", "-i"}, argv)

	cfg.Program = `sh -c 'echo "hello world"'`
	argv, err = programArgs(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", `echo "hello world"`}, argv)

	cfg.Program = `sh -c 'unterminated`
	_, err = programArgs(cfg, nil)
	assert.Error(t, err)

	cfg.Program = ""
	t.Setenv("SHELL", "/bin/ksh")
	argv, err = programArgs(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/ksh"}, argv)
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := crlfWriter{&buf}.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
}

func TestSetupLogging(t *testing.T) {
	assert.Error(t, setupLogging(true, true))
	assert.NoError(t, setupLogging(false, false))
}

// emptyStdin returns a pipe that is already at EOF.
func emptyStdin(t *testing.T) *os.File {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	w.Close()
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunConsole(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var screen bytes.Buffer
	err := runConsole(ctx, console.DefaultConfig(), []string{"sh", "-c", "echo hello"}, emptyStdin(t), &screen)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", screen.String())
}

func TestRunConsole_ProgramFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var screen bytes.Buffer
	err := runConsole(ctx, console.DefaultConfig(), []string{"sh", "-c", "exit 3"}, emptyStdin(t), &screen)
	assert.ErrorContains(t, err, "exit status 3")
}

func TestRunConsole_CleanExitRepeated(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := runConsole(ctx, console.DefaultConfig(), []string{"true"}, emptyStdin(t), &bytes.Buffer{})
		cancel()
		require.NoError(t, err, "run %d", i)
	}
}
