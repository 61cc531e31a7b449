package console

import (
	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/pkg/errors"
)

// errNoMem is what table exhaustion looks like to callers.
var errNoMem = errors.New("out of memory")

// notOpen marks a Fid that has not been opened.
const notOpen = -1

// Fid is a client handle bound to one node of the console tree.
type Fid struct {
	Num    uint32
	Qid    p9.Qid
	Opened int // open mode, or notOpen

	dirPos  int // next root entry to list
	clunked bool
}

// IsOpen reports whether the fid has been opened.
func (f *Fid) IsOpen() bool { return f.Opened != notOpen }

// CanRead reports whether the open mode allows reading.
func (f *Fid) CanRead() bool {
	m := f.Opened & 3
	return f.IsOpen() && (m == p9.OREAD || m == p9.ORDWR)
}

// CanWrite reports whether the open mode allows writing.
func (f *Fid) CanWrite() bool {
	m := f.Opened & 3
	return f.IsOpen() && (m == p9.OWRITE || m == p9.ORDWR)
}

// FidTable is the registry of every fid the client has used during the
// session. Entries are never freed: a clunked fid is tombstoned and may be
// bound again by a later attach or walk.
type FidTable struct {
	fids  []*Fid
	index map[uint32]*Fid
	max   int
}

// NewFidTable returns a table that refuses to grow past max entries.
// A max of zero or less means no limit.
func NewFidTable(max int) *FidTable {
	return &FidTable{
		index: make(map[uint32]*Fid),
		max:   max,
	}
}

// Create binds num to qid, unopened. An existing entry, live or
// tombstoned, is rebound in place.
func (t *FidTable) Create(num uint32, qid p9.Qid) (*Fid, error) {
	if f, ok := t.index[num]; ok {
		f.Qid = qid
		f.Opened = notOpen
		f.dirPos = 0
		f.clunked = false
		return f, nil
	}
	if t.max > 0 && len(t.fids) >= t.max {
		return nil, errNoMem
	}
	f := &Fid{Num: num, Qid: qid, Opened: notOpen}
	t.fids = append(t.fids, f)
	t.index[num] = f
	return f, nil
}

// Find returns the live fid numbered num, or nil.
func (t *FidTable) Find(num uint32) *Fid {
	f, ok := t.index[num]
	if !ok || f.clunked {
		return nil
	}
	return f
}

// Clunk tombstones f.
func (t *FidTable) Clunk(f *Fid) {
	f.Opened = notOpen
	f.clunked = true
}

// Len is the number of entries ever created.
func (t *FidTable) Len() int { return len(t.fids) }
