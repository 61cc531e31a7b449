package client

import (
	"context"
	"io"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/keaganluttrell/gconsole/pkg/resilience"
	"github.com/pkg/errors"
)

var errBackpressure = errors.New("server took no bytes")

// File is an open fid. Reads and writes move a private offset, which the
// console streams ignore but directories honour.
type File struct {
	c      *Client
	fid    uint32
	name   string
	iounit uint32
	offset uint64

	// Backpressure paces writes the server answers with a zero count.
	Backpressure resilience.RetryConfig
}

// OpenFile walks a fresh fid from dir to name and opens it.
func (c *Client) OpenFile(ctx context.Context, dir uint32, name string, mode uint8) (*File, error) {
	fid := c.NextFid()
	if _, err := c.Walk(ctx, dir, fid, name); err != nil {
		return nil, errors.Wrapf(err, "walk %s", name)
	}
	iounit, err := c.Open(ctx, fid, mode)
	if err != nil {
		c.Clunk(ctx, fid)
		return nil, errors.Wrapf(err, "open %s", name)
	}
	if iounit == 0 {
		iounit = c.Msize() - p9.IOHDRSZ
	}
	return &File{
		c:            c,
		fid:          fid,
		name:         name,
		iounit:       iounit,
		Backpressure: resilience.BackpressureConfig(),
	}, nil
}

// Name is the name the file was opened by.
func (f *File) Name() string { return f.name }

// Fid is the fid backing the file.
func (f *File) Fid() uint32 { return f.fid }

// ReadContext reads at most one iounit. A console read waits until data
// arrives; cancelling ctx flushes it. An empty reply is io.EOF.
func (f *File) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	count := min(uint32(len(p)), f.iounit)
	data, err := f.c.Read(ctx, f.fid, f.offset, count)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", f.name)
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, data)
	f.offset += uint64(n)
	return n, nil
}

// WriteContext writes all of p in iounit chunks. While the server keeps
// answering with a zero count the chunk is resent with backoff, until ctx
// ends.
func (f *File) WriteContext(ctx context.Context, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		chunk := p[written:]
		if uint32(len(chunk)) > f.iounit {
			chunk = chunk[:f.iounit]
		}

		var n uint32
		var werr error
		err := resilience.Retry(ctx, f.Backpressure, func() error {
			n, werr = f.c.Write(ctx, f.fid, f.offset, chunk)
			if werr == nil && n == 0 {
				return errBackpressure
			}
			return nil
		})
		if werr == nil {
			werr = err
		}
		if werr != nil {
			return written, errors.Wrapf(werr, "write %s", f.name)
		}
		written += int(n)
		f.offset += uint64(n)
	}
	return written, nil
}

func (f *File) Read(p []byte) (int, error) {
	return f.ReadContext(context.Background(), p)
}

func (f *File) Write(p []byte) (int, error) {
	return f.WriteContext(context.Background(), p)
}

// Close clunks the fid.
func (f *File) Close() error {
	return f.c.Clunk(context.Background(), f.fid)
}
