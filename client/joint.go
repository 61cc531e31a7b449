package client

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type contextReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

type contextWriter interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

// Pump copies src to dst until src reaches EOF, a write comes up short,
// either side fails or ctx ends. It joins a device to a console stream:
// a keyboard to in, or out to a screen. Sides that are *File honour ctx;
// a plain io.Reader is only checked between reads.
func Pump(ctx context.Context, name string, dst io.Writer, src io.Reader) error {
	read := src.Read
	if r, ok := src.(contextReader); ok {
		read = func(p []byte) (int, error) { return r.ReadContext(ctx, p) }
	}
	write := dst.Write
	if w, ok := dst.(contextWriter); ok {
		write = func(p []byte) (int, error) { return w.WriteContext(ctx, p) }
	}

	l := log.WithField("joint", name)
	buf := make([]byte, 8192)
	total := 0
	defer func() { l.Debugf("done after %d bytes", total) }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := read(buf)
		if n > 0 {
			m, err := write(buf[:n])
			total += m
			if err != nil {
				return errors.Wrapf(err, "%s: write", name)
			}
			if m < n {
				return errors.Wrapf(io.ErrShortWrite, "%s", name)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(rerr, "%s: read", name)
		}
	}
}
