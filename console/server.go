package console

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ListenAndServe exports the console tree at addr to a single client and
// returns when its session ends. Accepted forms:
//
//	host:port             TCP
//	unix:/path/to/socket  unix domain socket
//	ws://host:port/path   WebSocket
func ListenAndServe(ctx context.Context, addr string, cfg Config) error {
	network, laddr := "tcp", addr
	var wsPath string
	switch {
	case strings.HasPrefix(addr, "unix:"):
		network, laddr = "unix", strings.TrimPrefix(addr, "unix:")
	case strings.HasPrefix(addr, "ws://"):
		u, err := url.Parse(addr)
		if err != nil {
			return errors.Wrapf(err, "parse %s", addr)
		}
		laddr, wsPath = u.Host, u.Path
		if wsPath == "" {
			wsPath = "/"
		}
	}

	l, err := net.Listen(network, laddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	log.Infof("console listening on %s", addr)

	if wsPath != "" {
		return ServeWebSocket(ctx, l, wsPath, cfg)
	}
	return Serve(ctx, l, cfg)
}

// Serve accepts one connection from l, closes l and serves the console on
// that connection.
func Serve(ctx context.Context, l net.Listener, cfg Config) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	conn, err := l.Accept()
	stop()
	l.Close()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "accept")
	}
	log.Infof("console client %s connected", conn.RemoteAddr())

	return NewSession(NewConnTransport(conn), cfg).Serve(ctx)
}

// ServeWebSocket serves the console to the first WebSocket client upgrading
// on path. Later clients are refused while a session exists; the server
// shuts down when the session ends.
func ServeWebSocket(ctx context.Context, l net.Listener, path string, cfg Config) error {
	var busy atomic.Bool
	done := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if !busy.CompareAndSwap(false, true) {
			http.Error(w, "device busy", http.StatusServiceUnavailable)
			return
		}
		socket, err := Upgrade(w, r)
		if err != nil {
			log.Warnf("websocket upgrade failed: %v", err)
			busy.Store(false)
			return
		}
		log.Infof("console client %s connected", r.RemoteAddr)
		done <- NewSession(socket, cfg).Serve(ctx)
	})

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			done <- errors.Wrap(err, "http serve")
		}
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	srv.Close()
	return err
}
