package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCtl_RawMode(t *testing.T) {
	var c Ctl
	assert.True(t, c.Echo())

	assert.NoError(t, c.Write([]byte("rawon\n")))
	assert.True(t, c.Raw())
	assert.False(t, c.Echo())

	assert.NoError(t, c.Write([]byte("rawoff")))
	assert.True(t, c.Echo())

	assert.ErrorIs(t, c.Write([]byte("rawish")), errUnknownCtl)
}

func TestCtl_Blind(t *testing.T) {
	c := Ctl{blind: true}
	assert.False(t, c.Echo())
	assert.ErrorIs(t, c.Write([]byte("rawoff")), errBlindRaw)
	assert.False(t, c.Raw())
}
