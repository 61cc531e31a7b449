package console

import (
	"time"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
)

// Qid paths of the console tree. The gap at 3 separates the files that are
// always listed from the stream endpoints.
const (
	Qroot    = 0
	Qcons    = 1
	Qconsctl = 2
	Qinput   = 4
	Qoutput  = 5
)

type qentry struct {
	name string
	mode uint32
	typ  uint8
}

var qtab = map[uint64]qentry{
	Qroot:    {"/", p9.DMDIR | 0555, p9.QTDIR},
	Qcons:    {"cons", 0666, p9.QTFILE},
	Qconsctl: {"consctl", 0222, p9.QTFILE},
	Qinput:   {"in", p9.DMAPPEND | p9.DMEXCL | 0200, p9.QTFILE}, // the input producer writes here
	Qoutput:  {"out", p9.DMEXCL | 0400, p9.QTFILE},              // the output consumer reads here
}

// listing order of the root directory
var rootOrder = []uint64{Qcons, Qconsctl, Qinput, Qoutput}

func qid(path uint64) p9.Qid {
	return p9.Qid{Type: qtab[path].typ, Path: path}
}

func lookup(name string) (uint64, bool) {
	for _, path := range rootOrder {
		if qtab[path].name == name {
			return path, true
		}
	}
	return 0, false
}

func fillstat(path uint64) p9.Dir {
	t := qtab[path]
	return p9.Dir{
		Qid:   qid(path),
		Mode:  t.mode,
		Atime: uint32(time.Now().Unix()),
		Name:  t.name,
		Uid:   "tty",
		Gid:   "tty",
	}
}

// openNeeds maps the low bits of an open mode to the permission bits it
// needs: read 4, write 2, exec 1.
var openNeeds = [4]uint32{4, 2, 6, 1}

// permits checks mode against the owner bits of the node's permissions.
// The console has a single user.
func permits(path uint64, mode uint8) bool {
	n := openNeeds[mode&3]
	return (qtab[path].mode>>6)&n == n
}

// readRoot packs the stat entries of the visible files, starting with
// entry start of rootOrder, into at most count bytes. It returns the index
// to continue from. Entries never straddle a reply. Positions count every
// file, hidden or not, so hiding a stream mid-listing neither skips nor
// repeats an entry.
func readRoot(visible func(uint64) bool, start int, count uint32) ([]byte, int) {
	var buf []byte
	i := start
	for ; i < len(rootOrder); i++ {
		path := rootOrder[i]
		if !visible(path) {
			continue
		}
		d := fillstat(path)
		b := d.Bytes()
		if len(buf)+len(b) > int(count) {
			break
		}
		buf = append(buf, b...)
	}
	return buf, i
}
