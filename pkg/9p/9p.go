// Package p9 implements the 9P2000 protocol encoding and decoding.
// All protocol logic is consolidated here following Locality of Behavior.
package p9

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// --- Constants ---

// Version is the only dialect spoken by this package.
const Version = "9P2000"

// IOHDRSZ is the room a Tread/Twrite header takes out of msize.
const IOHDRSZ = 24

// ErrUnknownType is returned by Unmarshal for a message type code it does
// not know. The returned Fcall still carries Type and Tag.
var ErrUnknownType = errors.New("unknown message type")

// ErrMalformed is returned by Unmarshal for a body that does not match the
// layout of its message type.
var ErrMalformed = errors.New("malformed message")

const (
	OREAD   = 0x00
	OWRITE  = 0x01
	ORDWR   = 0x02
	OEXEC   = 0x03
	OTRUNC  = 0x10
	ORCLOSE = 0x40
)

// --- Message Types ---

const (
	Tversion = 100 + iota
	Rversion
	Tauth
	Rauth
	Tattach
	Rattach
	Terror // 106
	Rerror
	Tflush
	Rflush
	Twalk
	Rwalk
	Topen
	Ropen
	Tcreate
	Rcreate
	Tread
	Rread
	Twrite
	Rwrite
	Tclunk
	Rclunk
	Tremove
	Rremove
	Tstat
	Rstat
	Twstat
	Rwstat
)

// --- Permissions (Mode bits) ---

const (
	DMDIR    = 0x80000000
	DMAPPEND = 0x40000000
	DMEXCL   = 0x20000000
	DMMOUNT  = 0x10000000
	DMAUTH   = 0x08000000
	DMTMP    = 0x04000000
)

// --- Qid Type Constants ---

const (
	QTDIR    = 0x80
	QTAPPEND = 0x40
	QTEXCL   = 0x20
	QTMOUNT  = 0x10
	QTAUTH   = 0x08
	QTTMP    = 0x04
	QTFILE   = 0x00
)

// --- Special Values ---

const (
	NOTAG uint16 = 0xFFFF
	NOFID uint32 = 0xFFFFFFFF
)

// --- Qid ---

// Qid represents a unique file ID on the server.
type Qid struct {
	Type uint8
	Vers uint32
	Path uint64
}

// --- Dir (Stat) ---

// Dir describes a file (directory entry).
// Corresponds to the Plan 9 stat structure.
type Dir struct {
	Type   uint16
	Dev    uint32
	Qid    Qid
	Mode   uint32
	Atime  uint32
	Mtime  uint32
	Length uint64
	Name   string
	Uid    string
	Gid    string
	Muid   string
}

// Bytes encodes a Dir into the wire format: size[2] + contents.
func (d *Dir) Bytes() []byte {
	size := 39 +
		(2 + len(d.Name)) +
		(2 + len(d.Uid)) +
		(2 + len(d.Gid)) +
		(2 + len(d.Muid))

	b := make([]byte, 2+size)
	binary.LittleEndian.PutUint16(b[0:2], uint16(size))

	// Contents
	binary.LittleEndian.PutUint16(b[2:4], d.Type)
	binary.LittleEndian.PutUint32(b[4:8], d.Dev)

	// Qid
	b[8] = d.Qid.Type
	binary.LittleEndian.PutUint32(b[9:13], d.Qid.Vers)
	binary.LittleEndian.PutUint64(b[13:21], d.Qid.Path)

	binary.LittleEndian.PutUint32(b[21:25], d.Mode)
	binary.LittleEndian.PutUint32(b[25:29], d.Atime)
	binary.LittleEndian.PutUint32(b[29:33], d.Mtime)
	binary.LittleEndian.PutUint64(b[33:41], d.Length)

	off := 41
	off += pStrBuf(b[off:], d.Name)
	off += pStrBuf(b[off:], d.Uid)
	off += pStrBuf(b[off:], d.Gid)
	off += pStrBuf(b[off:], d.Muid)

	return b
}

// UnmarshalDir decodes a single Dir from the buffer.
func UnmarshalDir(b []byte) (Dir, int, error) {
	if len(b) < 2 {
		return Dir{}, 0, errors.New("buffer too short")
	}

	size := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < size+2 {
		return Dir{}, 0, errors.Errorf("buffer too short for dir size %d", size)
	}

	data := b[2 : 2+size]
	d := Dir{}

	if len(data) < 39 {
		return d, 0, errors.New("stat too short")
	}

	d.Type = binary.LittleEndian.Uint16(data[0:2])
	d.Dev = binary.LittleEndian.Uint32(data[2:6])

	d.Qid.Type = data[6]
	d.Qid.Vers = binary.LittleEndian.Uint32(data[7:11])
	d.Qid.Path = binary.LittleEndian.Uint64(data[11:19])

	d.Mode = binary.LittleEndian.Uint32(data[19:23])
	d.Atime = binary.LittleEndian.Uint32(data[23:27])
	d.Mtime = binary.LittleEndian.Uint32(data[27:31])
	d.Length = binary.LittleEndian.Uint64(data[31:39])

	off := 39
	var n int

	d.Name, n = gStrN(data[off:])
	off += n
	d.Uid, n = gStrN(data[off:])
	off += n
	d.Gid, n = gStrN(data[off:])
	off += n
	d.Muid, n = gStrN(data[off:])
	off += n

	return d, 2 + size, nil
}

// --- Fcall ---

// Fcall is the generic 9P message container.
type Fcall struct {
	Size uint32
	Type uint8
	Tag  uint16

	Msize   uint32 // Tversion, Rversion
	Version string // Tversion, Rversion

	Afid  uint32 // Tauth, Tattach
	Uname string // Tauth, Tattach
	Aname string // Tauth, Tattach

	Ename string // Rerror

	Oldtag uint16 // Tflush

	Fid    uint32 // Tattach, Twalk, Topen, Tcreate, Tread, Twrite, Tclunk, Tremove, Tstat, Twstat
	Newfid uint32 // Twalk

	Wname []string // Twalk
	Wqid  []Qid    // Rwalk

	Qid    Qid    // Rattach, Ropen, Rcreate
	Iounit uint32 // Ropen, Rcreate

	Mode uint8  // Topen, Tcreate
	Perm uint32 // Tcreate
	Name string // Tcreate

	Offset uint64 // Tread, Twrite
	Count  uint32 // Tread, Twrite, Rread, Rwrite
	Data   []byte // Rread, Twrite

	Stat []byte // Twstat, Rstat
}

func (f *Fcall) String() string {
	switch f.Type {
	case Tversion, Rversion:
		return fmt.Sprintf("%s tag %d msize %d version %q", typeName(f.Type), f.Tag, f.Msize, f.Version)
	case Tattach:
		return fmt.Sprintf("Tattach tag %d fid %d afid %d uname %q aname %q", f.Tag, f.Fid, f.Afid, f.Uname, f.Aname)
	case Rerror:
		return fmt.Sprintf("Rerror tag %d ename %q", f.Tag, f.Ename)
	case Tflush:
		return fmt.Sprintf("Tflush tag %d oldtag %d", f.Tag, f.Oldtag)
	case Twalk:
		return fmt.Sprintf("Twalk tag %d fid %d newfid %d wname %v", f.Tag, f.Fid, f.Newfid, f.Wname)
	case Rwalk:
		return fmt.Sprintf("Rwalk tag %d wqid %v", f.Tag, f.Wqid)
	case Topen:
		return fmt.Sprintf("Topen tag %d fid %d mode %d", f.Tag, f.Fid, f.Mode)
	case Ropen, Rattach:
		return fmt.Sprintf("%s tag %d qid %v iounit %d", typeName(f.Type), f.Tag, f.Qid, f.Iounit)
	case Tread:
		return fmt.Sprintf("Tread tag %d fid %d offset %d count %d", f.Tag, f.Fid, f.Offset, f.Count)
	case Rread:
		return fmt.Sprintf("Rread tag %d count %d", f.Tag, len(f.Data))
	case Twrite:
		return fmt.Sprintf("Twrite tag %d fid %d offset %d count %d", f.Tag, f.Fid, f.Offset, len(f.Data))
	case Rwrite:
		return fmt.Sprintf("Rwrite tag %d count %d", f.Tag, f.Count)
	}
	return fmt.Sprintf("%s tag %d fid %d", typeName(f.Type), f.Tag, f.Fid)
}

var typeNames = map[uint8]string{
	Tversion: "Tversion", Rversion: "Rversion",
	Tauth: "Tauth", Rauth: "Rauth",
	Tattach: "Tattach", Rattach: "Rattach",
	Rerror: "Rerror",
	Tflush: "Tflush", Rflush: "Rflush",
	Twalk: "Twalk", Rwalk: "Rwalk",
	Topen: "Topen", Ropen: "Ropen",
	Tcreate: "Tcreate", Rcreate: "Rcreate",
	Tread: "Tread", Rread: "Rread",
	Twrite: "Twrite", Rwrite: "Rwrite",
	Tclunk: "Tclunk", Rclunk: "Rclunk",
	Tremove: "Tremove", Rremove: "Rremove",
	Tstat: "Tstat", Rstat: "Rstat",
	Twstat: "Twstat", Rwstat: "Rwstat",
}

func typeName(t uint8) string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("T%d", t)
}

func (q Qid) String() string {
	return fmt.Sprintf("(%#x %d %#x)", q.Path, q.Vers, q.Type)
}

// --- Encoding ---

// Bytes returns the wire format of the Fcall.
func (f *Fcall) Bytes() ([]byte, error) {
	body, err := f.marshalBody()
	if err != nil {
		return nil, err
	}

	size := 4 + 1 + 2 + len(body)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	buf[4] = f.Type
	binary.LittleEndian.PutUint16(buf[5:7], f.Tag)
	copy(buf[7:], body)

	return buf, nil
}

func (f *Fcall) marshalBody() ([]byte, error) {
	b := make([]byte, 0, 1024)

	switch f.Type {
	case Tversion, Rversion:
		b = p32(b, f.Msize)
		b = pStr(b, f.Version)
	case Tauth:
		b = p32(b, f.Afid)
		b = pStr(b, f.Uname)
		b = pStr(b, f.Aname)
	case Rauth:
		b = pQid(b, f.Qid)
	case Rerror:
		b = pStr(b, f.Ename)
	case Tflush:
		b = p16(b, f.Oldtag)
	case Rflush:
		// empty body
	case Tattach:
		b = p32(b, f.Fid)
		b = p32(b, f.Afid)
		b = pStr(b, f.Uname)
		b = pStr(b, f.Aname)
	case Rattach:
		b = pQid(b, f.Qid)
	case Twalk:
		b = p32(b, f.Fid)
		b = p32(b, f.Newfid)
		b = p16(b, uint16(len(f.Wname)))
		for _, w := range f.Wname {
			b = pStr(b, w)
		}
	case Rwalk:
		b = p16(b, uint16(len(f.Wqid)))
		for _, q := range f.Wqid {
			b = pQid(b, q)
		}
	case Topen:
		b = p32(b, f.Fid)
		b = append(b, f.Mode)
	case Ropen, Rcreate:
		b = pQid(b, f.Qid)
		b = p32(b, f.Iounit)
	case Tcreate:
		b = p32(b, f.Fid)
		b = pStr(b, f.Name)
		b = p32(b, f.Perm)
		b = append(b, f.Mode)
	case Tread:
		b = p32(b, f.Fid)
		b = p64(b, f.Offset)
		b = p32(b, f.Count)
	case Rread:
		b = p32(b, uint32(len(f.Data)))
		b = append(b, f.Data...)
	case Twrite:
		b = p32(b, f.Fid)
		b = p64(b, f.Offset)
		b = p32(b, uint32(len(f.Data)))
		b = append(b, f.Data...)
	case Rwrite:
		b = p32(b, f.Count)
	case Tclunk, Tremove, Tstat:
		b = p32(b, f.Fid)
	case Rclunk, Rremove, Rwstat:
		// empty body
	case Rstat:
		b = p16(b, uint16(len(f.Stat)))
		b = append(b, f.Stat...)
	case Twstat:
		b = p32(b, f.Fid)
		b = p16(b, uint16(len(f.Stat)))
		b = append(b, f.Stat...)
	default:
		return nil, errors.Wrapf(ErrUnknownType, "marshal type %d", f.Type)
	}
	return b, nil
}

// --- Decoding ---

// ReadFcall reads a single 9P message from r.
func ReadFcall(r io.Reader) (*Fcall, error) {
	return ReadFcallMax(r, 0)
}

// ReadFcallMax reads a single 9P message from r, refusing messages larger
// than max bytes. A zero max disables the check.
func ReadFcallMax(r io.Reader, max uint32) (*Fcall, error) {
	sizeBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, sizeBuf); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf)

	if size < 7 {
		return nil, errors.Errorf("message too short: %d", size)
	}
	if max > 0 && size > max {
		return nil, errors.Errorf("message too long: %d > %d", size, max)
	}

	buf := make([]byte, size-4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return Unmarshal(buf, size)
}

// Unmarshal decodes the body (type + tag + params). A body that is too
// short for its fields, or carries bytes after them, is ErrMalformed.
func Unmarshal(buf []byte, size uint32) (*Fcall, error) {
	if len(buf) < 3 {
		return nil, errors.New("buffer too short header")
	}

	f := &Fcall{Size: size}
	f.Type = buf[0]
	f.Tag = binary.LittleEndian.Uint16(buf[1:3])

	d := &decoder{b: buf[3:]}

	switch f.Type {
	case Tversion, Rversion:
		f.Msize = d.u32()
		f.Version = d.str()
	case Tauth:
		f.Afid = d.u32()
		f.Uname = d.str()
		f.Aname = d.str()
	case Rauth:
		f.Qid = d.qid()
	case Rerror:
		f.Ename = d.str()
	case Tflush:
		f.Oldtag = d.u16()
	case Rflush:
	case Tattach:
		f.Fid = d.u32()
		f.Afid = d.u32()
		f.Uname = d.str()
		f.Aname = d.str()
	case Rattach:
		f.Qid = d.qid()
	case Twalk:
		f.Fid = d.u32()
		f.Newfid = d.u32()
		n := d.u16()
		f.Wname = make([]string, 0, min(int(n), len(d.b)/2))
		for i := 0; i < int(n) && d.err == nil; i++ {
			f.Wname = append(f.Wname, d.str())
		}
	case Rwalk:
		n := d.u16()
		f.Wqid = make([]Qid, 0, min(int(n), len(d.b)/13))
		for i := 0; i < int(n) && d.err == nil; i++ {
			f.Wqid = append(f.Wqid, d.qid())
		}
	case Topen:
		f.Fid = d.u32()
		f.Mode = d.u8()
	case Ropen, Rcreate:
		f.Qid = d.qid()
		f.Iounit = d.u32()
	case Tcreate:
		f.Fid = d.u32()
		f.Name = d.str()
		f.Perm = d.u32()
		f.Mode = d.u8()
	case Tread:
		f.Fid = d.u32()
		f.Offset = d.u64()
		f.Count = d.u32()
	case Rread:
		f.Data = d.data(d.u32())
	case Twrite:
		f.Fid = d.u32()
		f.Offset = d.u64()
		f.Data = d.data(d.u32())
	case Rwrite:
		f.Count = d.u32()
	case Tclunk, Tremove, Tstat:
		f.Fid = d.u32()
	case Rclunk, Rremove, Rwstat:
	case Rstat:
		f.Stat = d.data(uint32(d.u16()))
	case Twstat:
		f.Fid = d.u32()
		f.Stat = d.data(uint32(d.u16()))
	default:
		return f, errors.Wrapf(ErrUnknownType, "type %d", f.Type)
	}

	if d.err != nil {
		return nil, errors.Wrapf(d.err, "%s tag %d", typeName(f.Type), f.Tag)
	}
	if len(d.b) > 0 {
		return nil, errors.Wrapf(ErrMalformed, "%s tag %d: %d trailing bytes", typeName(f.Type), f.Tag, len(d.b))
	}
	if f.Type == Twrite {
		f.Count = uint32(len(f.Data))
	}
	return f, nil
}

// --- Helpers (encoding) ---

func p16(b []byte, v uint16) []byte {
	t := make([]byte, 2)
	binary.LittleEndian.PutUint16(t, v)
	return append(b, t...)
}

func p32(b []byte, v uint32) []byte {
	t := make([]byte, 4)
	binary.LittleEndian.PutUint32(t, v)
	return append(b, t...)
}

func p64(b []byte, v uint64) []byte {
	t := make([]byte, 8)
	binary.LittleEndian.PutUint64(t, v)
	return append(b, t...)
}

func pStr(b []byte, s string) []byte {
	l := uint16(len(s))
	b = p16(b, l)
	return append(b, s...)
}

func pQid(b []byte, q Qid) []byte {
	b = append(b, q.Type)
	b = p32(b, q.Vers)
	b = p64(b, q.Path)
	return b
}

func pStrBuf(b []byte, s string) int {
	l := uint16(len(s))
	binary.LittleEndian.PutUint16(b[0:2], l)
	copy(b[2:], s)
	return 2 + int(l)
}

// --- Helpers (decoding) ---

// decoder reads fields off a message body. The first short read sets err
// and every later read returns a zero value.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.b) < n {
		d.err = errors.Wrapf(ErrMalformed, "need %d bytes, have %d", n, len(d.b))
		return nil
	}
	p := d.b[:n]
	d.b = d.b[n:]
	return p
}

func (d *decoder) u8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if p := d.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if p := d.take(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

func (d *decoder) str() string {
	return string(d.take(int(d.u16())))
}

// data copies n bytes so the result does not alias the read buffer.
func (d *decoder) data(n uint32) []byte {
	if d.err == nil && uint64(n) > uint64(len(d.b)) {
		d.err = errors.Wrapf(ErrMalformed, "count %d overruns %d bytes", n, len(d.b))
	}
	p := d.take(int(n))
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

func (d *decoder) qid() Qid {
	return Qid{Type: d.u8(), Vers: d.u32(), Path: d.u64()}
}

func gStrN(b []byte) (string, int) {
	if len(b) < 2 {
		return "", 0
	}
	l := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < 2+l {
		return "", 0
	}
	return string(b[2 : 2+l]), 2 + l
}
