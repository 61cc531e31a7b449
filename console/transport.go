package console

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/pkg/errors"
)

// MessageTransport abstracts the connection carrying 9P messages.
type MessageTransport interface {
	ReadMsg(ctx context.Context) (*p9.Fcall, error)
	WriteMsg(ctx context.Context, f *p9.Fcall) error
	Close() error
}

// msizeLimiter is implemented by transports able to refuse messages bigger
// than the negotiated msize before reading them.
type msizeLimiter interface {
	SetMsize(msize uint32)
}

// ConnTransport carries self-framed 9P messages over a byte stream.
type ConnTransport struct {
	conn  io.ReadWriteCloser
	msize uint32
}

// NewConnTransport wraps a stream such as a net.Conn or one end of net.Pipe.
func NewConnTransport(conn io.ReadWriteCloser) *ConnTransport {
	return &ConnTransport{conn: conn}
}

func (t *ConnTransport) ReadMsg(ctx context.Context) (*p9.Fcall, error) {
	return p9.ReadFcallMax(t.conn, t.msize)
}

func (t *ConnTransport) WriteMsg(ctx context.Context, f *p9.Fcall) error {
	b, err := f.Bytes()
	if err != nil {
		return err
	}
	_, err = t.conn.Write(b)
	return err
}

func (t *ConnTransport) SetMsize(msize uint32) { t.msize = msize }

func (t *ConnTransport) Close() error {
	return t.conn.Close()
}

// Socket carries one 9P message per WebSocket binary frame.
// Framing: [4-byte size][9P Message]
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Upgrade upgrades the HTTP request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Socket, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, err
	}
	return &Socket{conn: c}, nil
}

// DialSocket connects to a console exported over WebSocket.
func DialSocket(ctx context.Context, url string) (*Socket, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return &Socket{conn: c}, nil
}

// Close closes the connection.
func (s *Socket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Socket) SetMsize(msize uint32) {
	s.conn.SetReadLimit(int64(msize))
}

// ReadMsg reads a 9P message from a WebSocket binary frame.
func (s *Socket) ReadMsg(ctx context.Context) (*p9.Fcall, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}

	if len(data) < 4 {
		return nil, errors.New("frame too short")
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)) != size {
		return nil, errors.Errorf("frame size mismatch: header says %d, got %d", size, len(data))
	}
	return p9.Unmarshal(data[4:], size)
}

// WriteMsg writes a 9P message to a WebSocket binary frame.
func (s *Socket) WriteMsg(ctx context.Context, f *p9.Fcall) error {
	buf, err := f.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.conn.Write(ctx, websocket.MessageBinary, buf)
}
