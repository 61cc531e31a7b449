package console

import (
	"testing"

	p9 "github.com/keaganluttrell/gconsole/pkg/9p"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFidTable_CreateFind(t *testing.T) {
	tab := NewFidTable(0)

	f, err := tab.Create(7, qid(Qcons))
	require.NoError(t, err)
	assert.False(t, f.IsOpen())
	assert.Same(t, f, tab.Find(7))
	assert.Nil(t, tab.Find(8))
}

func TestFidTable_ClunkTombstones(t *testing.T) {
	tab := NewFidTable(0)
	f, _ := tab.Create(1, qid(Qcons))
	f.Opened = p9.ORDWR

	tab.Clunk(f)
	assert.Nil(t, tab.Find(1))
	assert.Equal(t, 1, tab.Len())

	g, err := tab.Create(1, qid(Qroot))
	require.NoError(t, err)
	assert.Same(t, f, g, "clunked entries are reused")
	assert.False(t, g.IsOpen())
	assert.Equal(t, uint64(Qroot), g.Qid.Path)
	assert.Equal(t, 1, tab.Len())
}

func TestFidTable_Limit(t *testing.T) {
	tab := NewFidTable(2)
	_, err := tab.Create(1, qid(Qroot))
	require.NoError(t, err)
	_, err = tab.Create(2, qid(Qroot))
	require.NoError(t, err)

	_, err = tab.Create(3, qid(Qroot))
	assert.ErrorIs(t, err, errNoMem)

	_, err = tab.Create(2, qid(Qcons))
	assert.NoError(t, err, "rebinding does not grow the table")
}

func TestFid_Modes(t *testing.T) {
	tests := []struct {
		mode  int
		read  bool
		write bool
	}{
		{notOpen, false, false},
		{p9.OREAD, true, false},
		{p9.OWRITE, false, true},
		{p9.ORDWR, true, true},
		{p9.OEXEC, false, false},
		{p9.OWRITE | p9.OTRUNC, false, true},
	}
	for _, tt := range tests {
		f := &Fid{Opened: tt.mode}
		assert.Equal(t, tt.read, f.CanRead(), "mode %#x read", tt.mode)
		assert.Equal(t, tt.write, f.CanWrite(), "mode %#x write", tt.mode)
	}
}
