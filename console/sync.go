package console

import (
	"context"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/pkg/errors"
)

// sync answers every deferred read the rings can now satisfy. It runs once
// per request, after the request has been answered.
func (s *Session) sync(ctx context.Context) error {
	if err := s.drain(ctx, "cons", s.consReads, s.input); err != nil {
		return err
	}
	return s.drain(ctx, "out", s.outReads, s.output)
}

// drain hands one batch from ring to all the reads queued on it. The ring
// has already moved past the batch, so a failed send cannot be retried:
// the error ends the session.
func (s *Session) drain(ctx context.Context, name string, q *ReadQueue, ring *Ring) error {
	tags, data := q.Drain(ring)
	if len(tags) == 0 {
		return nil
	}
	s.log.Debugf("%s: %d bytes for %d readers", name, len(data), len(tags))
	for _, tag := range tags {
		if err := s.reply(ctx, &p9.Fcall{Type: p9.Rread, Tag: tag, Data: data}); err != nil {
			return errors.Wrapf(err, "deliver %s", name)
		}
	}
	return nil
}
