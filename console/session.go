// Package console serves a virtual console as a 9P2000 file tree:
//
//	/cons     console data: reads take keyboard input, writes go to the screen
//	/consctl  control: rawon, rawoff
//	/in       input producer endpoint (write only, hidden once opened)
//	/out      output consumer endpoint (read only, hidden once opened)
//
// A Session serves exactly one trusted client. Reads of cons and out that
// find no data are queued and answered later, so no handler ever blocks.
package console

import (
	"context"
	"io"

	"github.com/google/uuid"
	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Status is the mount state of a session.
type Status int

const (
	Initializing Status = iota // waiting for attach and both stream endpoints
	Mounted                    // attached, in and out open
	Unmounted                  // attach fid clunked
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Mounted:
		return "mounted"
	case Unmounted:
		return "unmounted"
	}
	return "unknown"
}

// Session holds all the state of one console connection. It is not safe
// for concurrent use: Serve owns it.
type Session struct {
	ID string

	socket MessageTransport
	cfg    Config
	log    *log.Entry

	msize    uint32
	fids     *FidTable
	external *Fid // the attach fid
	ctl      Ctl
	status   Status

	input  *Ring // written through in, read through cons
	output *Ring // written through cons and echo, read through out

	consReads *ReadQueue
	outReads  *ReadQueue
}

// NewSession prepares a session on sock. Nothing is read until Serve.
func NewSession(sock MessageTransport, cfg Config) *Session {
	id := uuid.New().String()
	if l, ok := sock.(msizeLimiter); ok {
		l.SetMsize(cfg.maxMsize())
	}
	return &Session{
		ID:        id,
		socket:    sock,
		cfg:       cfg,
		log:       log.WithField("session", id),
		msize:     cfg.maxMsize(),
		fids:      NewFidTable(cfg.MaxHandles),
		ctl:       Ctl{blind: cfg.Blind},
		consReads: NewReadQueue(cfg.MaxPending),
		outReads:  NewReadQueue(cfg.MaxPending),
	}
}

// Status returns the mount state.
func (s *Session) Status() Status { return s.status }

// Serve runs the message loop until the attach fid is clunked, the client
// hangs up, the transport fails or ctx is cancelled. The transport is
// closed on return. A clean shutdown returns nil.
func (s *Session) Serve(ctx context.Context) error {
	defer s.socket.Close()
	stop := context.AfterFunc(ctx, func() { s.socket.Close() })
	defer stop()

	s.log.Debug("started")
	for s.status != Unmounted {
		req, err := s.socket.ReadMsg(ctx)
		if err != nil {
			if req != nil && errors.Is(err, p9.ErrUnknownType) {
				s.log.Debugf("<-%v", req)
				if err := s.reply(ctx, rError(req, "bad fcall type")); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				s.log.Debug("client hung up")
				return nil
			}
			return errors.Wrap(err, "read message")
		}
		s.log.Debugf("<-%v", req)

		if resp := s.handle(req); resp != nil {
			if err := s.reply(ctx, resp); err != nil {
				return err
			}
		}
		if err := s.sync(ctx); err != nil {
			return err
		}
	}
	s.log.Debug("shut down")
	return nil
}

func (s *Session) reply(ctx context.Context, resp *p9.Fcall) error {
	s.log.Debugf("->%v", resp)
	return errors.Wrap(s.socket.WriteMsg(ctx, resp), "send message")
}

// updateStatus mounts the session once the attach fid exists and both
// stream endpoints have been opened.
func (s *Session) updateStatus() {
	if s.status == Initializing && s.external != nil && s.input != nil && s.output != nil {
		s.status = Mounted
		s.log.Info("console mounted")
	}
}

func rError(req *p9.Fcall, ename string) *p9.Fcall {
	return &p9.Fcall{
		Type:  p9.Rerror,
		Tag:   req.Tag,
		Ename: ename,
	}
}
