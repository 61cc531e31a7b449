package main

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// makeRaw puts a terminal f into raw mode, since the console does its own
// echo. Blind consoles and non-terminals are left alone.
func makeRaw(f *os.File, blind bool) (restore func(), raw bool, err error) {
	fd := int(f.Fd())
	if blind || !term.IsTerminal(fd) {
		return func() {}, false, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, false, errors.Wrap(err, "raw mode")
	}
	return func() { term.Restore(fd, old) }, true, nil
}

// crlfWriter turns newlines into CRLF for a terminal in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
