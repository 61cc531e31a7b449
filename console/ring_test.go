package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_FIFO(t *testing.T) {
	r := NewRing(8)
	assert.True(t, r.Empty())
	assert.Equal(t, 8, r.Free())

	assert.Equal(t, 3, r.Write([]byte("abc")))
	assert.Equal(t, 2, r.Write([]byte("de")))
	assert.Equal(t, 5, r.Len())

	assert.Equal(t, "ab", string(r.Consume(2)))
	assert.Equal(t, "cde", string(r.Consume(100)))
	assert.True(t, r.Empty())
	assert.Nil(t, r.Consume(10))
}

func TestRing_WriteTruncates(t *testing.T) {
	r := NewRing(4)
	assert.Equal(t, 4, r.Write([]byte("abcdef")))
	assert.Equal(t, 0, r.Write([]byte("g")), "full ring takes nothing")
	assert.Equal(t, 0, r.Free())
	assert.Equal(t, "abcd", string(r.Consume(4)))
}

func TestRing_ResetsWhenDrained(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte("abcd"))
	r.Consume(2)
	// No wraparound: the free tail is gone until everything is read.
	assert.Equal(t, 0, r.Free())
	assert.Equal(t, 0, r.Write([]byte("x")))

	r.Consume(2)
	assert.Equal(t, 4, r.Free())
	assert.Equal(t, 4, r.Write([]byte("wxyz")))
	assert.Equal(t, "wxyz", string(r.Consume(4)))
}

func TestRing_Discard(t *testing.T) {
	r := NewRing(8)
	r.Write([]byte("hello"))
	r.Consume(1)

	r.Discard(2)
	assert.Equal(t, "el", string(r.Consume(8)))

	r.Write([]byte("ab"))
	r.Discard(10)
	assert.True(t, r.Empty())
}

func TestRing_ConsumePanicsOnCorruption(t *testing.T) {
	r := NewRing(2)
	r.read = 3
	assert.Panics(t, func() { r.Consume(1) })
}
