// Package client is a 9P2000 client for the console tree. Requests from
// any number of goroutines share one connection: each is tagged, and a
// single reader hands replies back by tag, so deferred console reads can
// be outstanding while other requests complete.
package client

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/keaganluttrell/gconsole/console"
	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/keaganluttrell/gconsole/pkg/resilience"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned for requests on a client whose connection is gone.
var ErrClosed = errors.New("client closed")

// Error is an Rerror from the server.
type Error struct {
	Ename string
}

func (e *Error) Error() string { return e.Ename }

// Client is a connection to a 9P server.
type Client struct {
	t     console.MessageTransport
	msize uint32

	wmu sync.Mutex // serializes WriteMsg

	mu      sync.Mutex
	pending map[uint16]chan *p9.Fcall
	tag     uint16
	lastFid uint32
	err     error // why the reader stopped

	done chan struct{}
}

// New starts a client on t. The client owns t from now on.
func New(t console.MessageTransport) *Client {
	c := &Client{
		t:       t,
		msize:   p9.IOHDRSZ + console.MaxData,
		pending: make(map[uint16]chan *p9.Fcall),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to addr with retry. addr takes the same forms as
// console.ListenAndServe: host:port, unix:/path or ws://host:port/path.
func Dial(ctx context.Context, addr string, cfg resilience.RetryConfig) (*Client, error) {
	var t console.MessageTransport
	err := resilience.Retry(ctx, cfg, func() error {
		var err error
		t, err = dial(ctx, addr)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return New(t), nil
}

func dial(ctx context.Context, addr string) (console.MessageTransport, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return console.DialSocket(ctx, addr)
	}
	var d net.Dialer
	network := "tcp"
	if strings.HasPrefix(addr, "unix:") {
		network, addr = "unix", strings.TrimPrefix(addr, "unix:")
	}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return console.NewConnTransport(conn), nil
}

// Close hangs up. Outstanding requests fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection is gone, or nil while it is up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	close(c.done)
	c.mu.Unlock()
	c.t.Close()
}

func (c *Client) readLoop() {
	for {
		resp, err := c.t.ReadMsg(context.Background())
		if err != nil {
			c.shutdown(errors.Wrap(ErrClosed, err.Error()))
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.Tag]
		delete(c.pending, resp.Tag)
		c.mu.Unlock()
		if !ok {
			log.Warnf("client: reply for unknown tag: %v", resp)
			continue
		}
		ch <- resp
	}
}

// NextFid returns a fid number not handed out before.
func (c *Client) NextFid() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFid++
	if c.lastFid == p9.NOFID {
		c.lastFid = 0
	}
	return c.lastFid
}

// register allocates a free tag for req. Tversion always uses NOTAG.
func (c *Client) register(req *p9.Fcall) (chan *p9.Fcall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if req.Type == p9.Tversion {
		req.Tag = p9.NOTAG
	} else {
		for {
			c.tag++
			if c.tag == p9.NOTAG {
				c.tag = 0
			}
			if _, busy := c.pending[c.tag]; !busy {
				break
			}
		}
		req.Tag = c.tag
	}
	ch := make(chan *p9.Fcall, 1)
	c.pending[req.Tag] = ch
	return ch, nil
}

func (c *Client) forget(tag uint16) {
	c.mu.Lock()
	delete(c.pending, tag)
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, req *p9.Fcall) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.t.WriteMsg(ctx, req)
}

// RPC sends req under a fresh tag and waits for its reply. If ctx ends
// first the request is flushed; a reply that beats the Rflush is still
// returned. Rerror replies come back as *Error.
func (c *Client) RPC(ctx context.Context, req *p9.Fcall) (*p9.Fcall, error) {
	ch, err := c.register(req)
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, req); err != nil {
		// A failed write may leave half a message on the wire.
		c.forget(req.Tag)
		c.shutdown(errors.Wrapf(ErrClosed, "send %v: %v", req, err))
		return nil, c.Err()
	}

	var resp *p9.Fcall
	select {
	case resp = <-ch:
	case <-c.done:
		// The reply may have arrived just before the connection dropped.
		select {
		case resp = <-ch:
		default:
			return nil, c.Err()
		}
	case <-ctx.Done():
		if err := c.Flush(context.Background(), req.Tag); err != nil {
			c.forget(req.Tag)
			return nil, err
		}
		select {
		case resp = <-ch:
		default:
			c.forget(req.Tag)
			return nil, ctx.Err()
		}
	}

	if resp.Type == p9.Rerror {
		return nil, &Error{Ename: resp.Ename}
	}
	if resp.Type != req.Type+1 {
		return nil, errors.Errorf("%v: unexpected reply %v", req, resp)
	}
	return resp, nil
}

// Flush asks the server to abandon the request tagged oldtag and waits
// for the acknowledgement.
func (c *Client) Flush(ctx context.Context, oldtag uint16) error {
	_, err := c.RPC(ctx, &p9.Fcall{Type: p9.Tflush, Oldtag: oldtag})
	return err
}

// Version negotiates the message size and returns the server's choice.
func (c *Client) Version(ctx context.Context, msize uint32) (uint32, error) {
	resp, err := c.RPC(ctx, &p9.Fcall{Type: p9.Tversion, Msize: msize, Version: p9.Version})
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.msize = resp.Msize
	c.mu.Unlock()
	return resp.Msize, nil
}

// Msize is the negotiated message size.
func (c *Client) Msize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msize
}

// Attach connects a new fid to the root of the tree.
func (c *Client) Attach(ctx context.Context, uname, aname string) (uint32, error) {
	fid := c.NextFid()
	_, err := c.RPC(ctx, &p9.Fcall{Type: p9.Tattach, Fid: fid, Afid: p9.NOFID, Uname: uname, Aname: aname})
	if err != nil {
		return p9.NOFID, err
	}
	return fid, nil
}

// Walk walks newfid from fid through names.
func (c *Client) Walk(ctx context.Context, fid, newfid uint32, names ...string) ([]p9.Qid, error) {
	resp, err := c.RPC(ctx, &p9.Fcall{Type: p9.Twalk, Fid: fid, Newfid: newfid, Wname: names})
	if err != nil {
		return nil, err
	}
	if len(resp.Wqid) != len(names) {
		return resp.Wqid, errors.Errorf("walk %v: stopped after %d names", names, len(resp.Wqid))
	}
	return resp.Wqid, nil
}

// Open opens fid and returns the server's iounit.
func (c *Client) Open(ctx context.Context, fid uint32, mode uint8) (uint32, error) {
	resp, err := c.RPC(ctx, &p9.Fcall{Type: p9.Topen, Fid: fid, Mode: mode})
	if err != nil {
		return 0, err
	}
	return resp.Iounit, nil
}

// Read reads up to count bytes at offset.
func (c *Client) Read(ctx context.Context, fid uint32, offset uint64, count uint32) ([]byte, error) {
	resp, err := c.RPC(ctx, &p9.Fcall{Type: p9.Tread, Fid: fid, Offset: offset, Count: count})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Write writes data at offset and returns the count the server took.
func (c *Client) Write(ctx context.Context, fid uint32, offset uint64, data []byte) (uint32, error) {
	resp, err := c.RPC(ctx, &p9.Fcall{Type: p9.Twrite, Fid: fid, Offset: offset, Data: data, Count: uint32(len(data))})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Stat returns the directory entry of fid.
func (c *Client) Stat(ctx context.Context, fid uint32) (p9.Dir, error) {
	resp, err := c.RPC(ctx, &p9.Fcall{Type: p9.Tstat, Fid: fid})
	if err != nil {
		return p9.Dir{}, err
	}
	d, _, err := p9.UnmarshalDir(resp.Stat)
	return d, errors.Wrap(err, "decode stat")
}

// Clunk releases fid.
func (c *Client) Clunk(ctx context.Context, fid uint32) error {
	_, err := c.RPC(ctx, &p9.Fcall{Type: p9.Tclunk, Fid: fid})
	return err
}
