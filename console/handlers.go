package console

import (
	"strings"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
)

const (
	errBadFid   = "bad fid"
	errPerm     = "permission denied"
	errIO       = "i/o error"
	errBadCount = "bad read/write count"
)

// handle answers req. A nil reply means the request was deferred and will
// be answered by sync.
func (s *Session) handle(req *p9.Fcall) *p9.Fcall {
	switch req.Type {
	case p9.Tversion:
		return s.rversion(req)
	case p9.Tauth:
		return rError(req, "gconsole: authentication not required")
	case p9.Tattach:
		return s.rattach(req)
	case p9.Tflush:
		return s.rflush(req)
	case p9.Twalk:
		return s.rwalk(req)
	case p9.Topen:
		return s.ropen(req)
	case p9.Tread:
		return s.rread(req)
	case p9.Twrite:
		return s.rwrite(req)
	case p9.Tclunk:
		return s.rclunk(req)
	case p9.Tstat:
		return s.rstat(req)
	case p9.Tcreate, p9.Tremove, p9.Twstat:
		return rError(req, errPerm)
	default:
		return rError(req, "bad fcall type")
	}
}

func reply(req *p9.Fcall) *p9.Fcall {
	return &p9.Fcall{Type: req.Type + 1, Tag: req.Tag}
}

func (s *Session) rversion(req *p9.Fcall) *p9.Fcall {
	if req.Msize < s.cfg.minMsize() {
		return rError(req, "message size too small")
	}
	if !strings.HasPrefix(req.Version, p9.Version) {
		return rError(req, "unrecognized 9P version")
	}
	s.msize = min(req.Msize, s.cfg.maxMsize())
	if l, ok := s.socket.(msizeLimiter); ok {
		l.SetMsize(s.msize)
	}

	resp := reply(req)
	resp.Msize = s.msize
	resp.Version = p9.Version
	return resp
}

func (s *Session) rattach(req *p9.Fcall) *p9.Fcall {
	if req.Aname != "" {
		return rError(req, "bad attach specifier")
	}
	if s.external != nil {
		return rError(req, "device busy")
	}
	f, err := s.fids.Create(req.Fid, qid(Qroot))
	if err != nil {
		return rError(req, err.Error())
	}
	s.external = f
	s.updateStatus()

	resp := reply(req)
	resp.Qid = f.Qid
	return resp
}

func (s *Session) rflush(req *p9.Fcall) *p9.Fcall {
	s.consReads.Remove(req.Oldtag)
	s.outReads.Remove(req.Oldtag)
	return reply(req)
}

func (s *Session) rwalk(req *p9.Fcall) *p9.Fcall {
	f := s.fids.Find(req.Fid)
	if f == nil {
		return rError(req, errBadFid)
	}
	if len(req.Wname) > 1 || (len(req.Wname) == 1 && f.Qid.Path != Qroot) {
		return rError(req, "walk in non directory")
	}
	if f.IsOpen() {
		return rError(req, "fid in use")
	}

	q := f.Qid
	if len(req.Wname) == 1 {
		path, ok := s.resolve(req.Wname[0])
		if !ok {
			return rError(req, "file does not exist")
		}
		q = qid(path)
	}

	n := f
	if req.Newfid != req.Fid {
		if old := s.fids.Find(req.Newfid); old != nil && old.IsOpen() {
			return rError(req, "newfid already in use")
		}
		var err error
		if n, err = s.fids.Create(req.Newfid, q); err != nil {
			return rError(req, err.Error())
		}
	}
	n.Qid = q

	resp := reply(req)
	resp.Wqid = []p9.Qid{}
	if len(req.Wname) == 1 {
		resp.Wqid = append(resp.Wqid, q)
	}
	return resp
}

// resolve looks name up in the root directory. Stream endpoints vanish
// once they have been opened.
func (s *Session) resolve(name string) (uint64, bool) {
	if name == ".." {
		return Qroot, true
	}
	path, ok := lookup(name)
	if !ok || !s.visible(path) {
		return 0, false
	}
	return path, true
}

func (s *Session) visible(path uint64) bool {
	switch path {
	case Qinput:
		return s.input == nil
	case Qoutput:
		return s.output == nil
	}
	return true
}

func (s *Session) ropen(req *p9.Fcall) *p9.Fcall {
	f := s.fids.Find(req.Fid)
	if f == nil {
		return rError(req, errBadFid)
	}
	if f.IsOpen() {
		return rError(req, "already open")
	}
	if !permits(f.Qid.Path, req.Mode) {
		return rError(req, errPerm)
	}

	resp := reply(req)
	switch f.Qid.Path {
	case Qinput:
		if s.input != nil {
			return rError(req, "exclusive use file already open")
		}
		s.input = NewRing(s.cfg.InputBuffer)
		resp.Iounit = uint32(s.cfg.InputBuffer)
	case Qoutput:
		if s.output != nil {
			return rError(req, "exclusive use file already open")
		}
		s.output = NewRing(s.cfg.OutputBuffer)
		resp.Iounit = uint32(s.cfg.OutputBuffer)
	}
	f.Opened = int(req.Mode)
	s.updateStatus()

	resp.Qid = f.Qid
	return resp
}

func (s *Session) validCount(n uint32) bool {
	return n <= s.msize-p9.IOHDRSZ
}

func (s *Session) rread(req *p9.Fcall) *p9.Fcall {
	if !s.validCount(req.Count) {
		return rError(req, errBadCount)
	}
	f := s.fids.Find(req.Fid)
	if f == nil {
		return rError(req, errBadFid)
	}
	if !f.CanRead() {
		return rError(req, errIO)
	}

	switch f.Qid.Path {
	case Qroot:
		// Offset 0 restarts the listing; any other offset continues it.
		if req.Offset == 0 {
			f.dirPos = 0
		}
		resp := reply(req)
		resp.Data, f.dirPos = readRoot(s.visible, f.dirPos, req.Count)
		return resp
	case Qcons:
		return s.deferRead(req, s.consReads)
	case Qoutput:
		return s.deferRead(req, s.outReads)
	}
	return rError(req, errPerm)
}

// deferRead queues req on q. The console does not preserve record
// boundaries, so an empty read is the one read answered right away.
func (s *Session) deferRead(req *p9.Fcall, q *ReadQueue) *p9.Fcall {
	if req.Count == 0 {
		resp := reply(req)
		resp.Data = []byte{}
		return resp
	}
	if err := q.Enqueue(req.Tag, req.Count); err != nil {
		return rError(req, err.Error())
	}
	return nil
}

func (s *Session) rwrite(req *p9.Fcall) *p9.Fcall {
	if !s.validCount(uint32(len(req.Data))) {
		return rError(req, errBadCount)
	}
	f := s.fids.Find(req.Fid)
	if f == nil {
		return rError(req, errBadFid)
	}
	if !f.CanWrite() {
		return rError(req, errIO)
	}

	resp := reply(req)
	switch f.Qid.Path {
	case Qcons:
		if s.output == nil {
			return rError(req, "output not connected")
		}
		resp.Count = uint32(s.output.Write(req.Data))
	case Qconsctl:
		if err := s.ctl.Write(req.Data); err != nil {
			return rError(req, err.Error())
		}
		s.log.Debugf("raw mode %v", s.ctl.Raw())
		resp.Count = uint32(len(req.Data))
	case Qinput:
		resp.Count = uint32(s.feed(req.Data))
	default:
		return rError(req, errPerm)
	}
	return resp
}

// feed stores producer input and echoes it to the output stream. The echo
// is trimmed so it never shows more than the input ring accepted.
func (s *Session) feed(p []byte) int {
	echoed := 0
	if s.ctl.Echo() && s.output != nil {
		echoed = s.output.Write(p)
	}
	fed := s.input.Write(p)
	if echoed > fed {
		s.output.Discard(echoed - fed)
	}
	return fed
}

func (s *Session) rclunk(req *p9.Fcall) *p9.Fcall {
	f := s.fids.Find(req.Fid)
	if f == nil {
		return rError(req, errBadFid)
	}
	s.fids.Clunk(f)
	if f == s.external {
		s.status = Unmounted
		s.log.Info("console unmounted")
	}
	return reply(req)
}

func (s *Session) rstat(req *p9.Fcall) *p9.Fcall {
	f := s.fids.Find(req.Fid)
	if f == nil {
		return rError(req, errBadFid)
	}
	d := fillstat(f.Qid.Path)
	resp := reply(req)
	resp.Stat = d.Bytes()
	return resp
}
