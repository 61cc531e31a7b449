package p9

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Tversion(t *testing.T) {
	req := &Fcall{
		Type:    Tversion,
		Tag:     NOTAG,
		Msize:   8192,
		Version: Version,
	}

	b, err := req.Bytes()
	assert.NoError(t, err)

	decoded, err := Unmarshal(b[4:], binary.LittleEndian.Uint32(b[0:4]))
	assert.NoError(t, err)

	assert.Equal(t, req.Type, decoded.Type)
	assert.Equal(t, req.Msize, decoded.Msize)
	assert.Equal(t, req.Version, decoded.Version)
}

func TestEncodeDecode_Rread(t *testing.T) {
	req := &Fcall{
		Type: Rread,
		Tag:  1,
		Data: []byte("hello world"),
	}

	b, err := req.Bytes()
	assert.NoError(t, err)

	decoded, err := Unmarshal(b[4:], binary.LittleEndian.Uint32(b[0:4]))
	assert.NoError(t, err)

	assert.Equal(t, req.Data, decoded.Data)
}

func TestDir_Marshal(t *testing.T) {
	d := Dir{
		Type:   0,
		Dev:    0,
		Qid:    Qid{Type: QTFILE, Vers: 1, Path: 123},
		Mode:   0644,
		Atime:  1000,
		Mtime:  2000,
		Length: 1024,
		Name:   "foo.txt",
		Uid:    "alice",
		Gid:    "users",
		Muid:   "alice",
	}

	b := d.Bytes()

	d2, n, err := UnmarshalDir(b)
	assert.NoError(t, err)
	assert.Equal(t, len(b), n)

	assert.Equal(t, d.Name, d2.Name)
	assert.Equal(t, d.Length, d2.Length)
	assert.Equal(t, d.Uid, d2.Uid)
	assert.Equal(t, d.Qid, d2.Qid)
}

func TestEncodeDecode_TwalkSingleName(t *testing.T) {
	req := &Fcall{Type: Twalk, Tag: 3, Fid: 0, Newfid: 7, Wname: []string{"cons"}}

	b, err := req.Bytes()
	require.NoError(t, err)

	decoded, err := ReadFcall(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), decoded.Newfid)
	assert.Equal(t, []string{"cons"}, decoded.Wname)
}

func TestUnmarshal_UnknownTypeKeepsHeader(t *testing.T) {
	// size[4] type[1] tag[2]
	raw := []byte{7, 0, 0, 0, 99, 42, 0}

	f, err := ReadFcall(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
	require.NotNil(t, f)
	assert.Equal(t, uint8(99), f.Type)
	assert.Equal(t, uint16(42), f.Tag)
}

// body builds type[1] tag[2] followed by fields.
func body(typ uint8, tag uint16, fields ...[]byte) []byte {
	b := []byte{typ, byte(tag), byte(tag >> 8)}
	for _, f := range fields {
		b = append(b, f...)
	}
	return b
}

func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

func TestUnmarshal_Malformed(t *testing.T) {
	offset := make([]byte, 8)
	tests := []struct {
		name string
		buf  []byte
	}{
		{"Twrite count past data", body(Twrite, 1, le32(2), offset, le32(100), []byte("hello"))},
		{"Tread fid only", body(Tread, 1, le32(2))},
		{"Topen without mode", body(Topen, 1, le32(2))},
		{"Twalk name past body", body(Twalk, 1, le32(0), le32(1), le16(1), le16(9), []byte("out"))},
		{"Tclunk trailing byte", body(Tclunk, 1, le32(2), []byte{0})},
		{"Rversion without version", body(Rversion, NOTAG, le32(8192))},
		{"Rstat count past data", body(Rstat, 1, le16(40), []byte{1, 2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Unmarshal(tt.buf, uint32(len(tt.buf)+4))
			assert.Nil(t, f)
			assert.True(t, errors.Is(err, ErrMalformed), "err = %v", err)
		})
	}
}

func TestUnmarshal_ExactBody(t *testing.T) {
	buf := body(Twrite, 1, le32(2), make([]byte, 8), le32(5), []byte("hello"))
	f, err := Unmarshal(buf, uint32(len(buf)+4))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), f.Count)
	assert.Equal(t, "hello", string(f.Data))
}

func TestReadFcallMax_RejectsOversized(t *testing.T) {
	req := &Fcall{Type: Twrite, Tag: 1, Fid: 2, Data: make([]byte, 100)}
	b, err := req.Bytes()
	require.NoError(t, err)

	_, err = ReadFcallMax(bytes.NewReader(b), 64)
	assert.Error(t, err)

	f, err := ReadFcallMax(bytes.NewReader(b), uint32(len(b)))
	require.NoError(t, err)
	assert.Len(t, f.Data, 100)
}

func TestReadFcall_TooShort(t *testing.T) {
	_, err := ReadFcall(bytes.NewReader([]byte{6, 0, 0, 0, 0, 0}))
	assert.Error(t, err)
}

func TestFcall_String(t *testing.T) {
	f := &Fcall{Type: Rerror, Tag: 5, Ename: "bad fid"}
	assert.Equal(t, `Rerror tag 5 ename "bad fid"`, f.String())

	f = &Fcall{Type: Tclunk, Tag: 2, Fid: 9}
	assert.Equal(t, "Tclunk tag 2 fid 9", f.String())
}
