package console

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_TCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), l, DefaultConfig()) }()

	c, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))

	resp := pipeRPC(t, c, &p9.Fcall{Type: p9.Tattach, Tag: 1, Fid: 0})
	assert.Equal(t, uint8(p9.Rattach), resp.Type)
	resp = pipeRPC(t, c, &p9.Fcall{Type: p9.Tclunk, Tag: 2, Fid: 0})
	assert.Equal(t, uint8(p9.Rclunk), resp.Type)
	assert.NoError(t, wait(t, done))

	_, err = net.Dial("tcp", l.Addr().String())
	assert.Error(t, err, "listener is closed after the first client")
}

func TestListenAndServe_Unix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cons.sock")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, "unix:"+path, DefaultConfig()) }()

	var c net.Conn
	require.Eventually(t, func() bool {
		var err error
		c, err = net.Dial("unix", path)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))

	resp := pipeRPC(t, c, &p9.Fcall{Type: p9.Tversion, Tag: p9.NOTAG, Msize: 8192, Version: p9.Version})
	assert.Equal(t, uint8(p9.Rversion), resp.Type)

	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
}

func TestServe_CancelBeforeAccept(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, l, DefaultConfig()) }()
	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
}

func TestServeWebSocket(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ServeWebSocket(ctx, l, "/9p", DefaultConfig()) }()

	url := "ws://" + l.Addr().String() + "/9p"
	sock, err := DialSocket(ctx, url)
	require.NoError(t, err)

	rpc := func(req *p9.Fcall) *p9.Fcall {
		require.NoError(t, sock.WriteMsg(ctx, req))
		resp, err := sock.ReadMsg(ctx)
		require.NoError(t, err)
		return resp
	}

	resp := rpc(&p9.Fcall{Type: p9.Tversion, Tag: p9.NOTAG, Msize: 8192, Version: p9.Version})
	assert.Equal(t, uint8(p9.Rversion), resp.Type)
	resp = rpc(&p9.Fcall{Type: p9.Tattach, Tag: 1, Fid: 0})
	assert.Equal(t, uint8(p9.Rattach), resp.Type)

	_, err = DialSocket(ctx, url)
	assert.Error(t, err, "second client is refused")

	resp = rpc(&p9.Fcall{Type: p9.Tclunk, Tag: 2, Fid: 0})
	assert.Equal(t, uint8(p9.Rclunk), resp.Type)
	sock.Close()
	assert.NoError(t, wait(t, done))
}
