package console

import "fmt"

// Ring is a fixed-capacity byte buffer bridging the protocol loop with the
// collaborators on either side of a stream. It never wraps: once every
// written byte has been consumed both offsets return to zero.
//
// Only the serve loop touches a Ring.
type Ring struct {
	written int
	read    int
	data    []byte
}

// NewRing allocates a ring holding up to size bytes.
func NewRing(size int) *Ring {
	return &Ring{data: make([]byte, size)}
}

// Write appends as much of p as fits and returns the number of bytes taken.
// Zero means the ring is full.
func (r *Ring) Write(p []byte) int {
	if r.read == r.written {
		r.read = 0
		r.written = 0
	}
	n := copy(r.data[r.written:], p)
	r.written += n
	return n
}

// Consume returns up to max unread bytes and marks them as read. The slice
// aliases the ring storage and is valid until the next Write.
func (r *Ring) Consume(max int) []byte {
	n := r.written - r.read
	if n > max {
		n = max
	}
	if n < 0 || n > len(r.data) {
		panic(fmt.Sprintf("console: ring overflow: read %d written %d cap %d", r.read, r.written, len(r.data)))
	}
	if n == 0 {
		return nil
	}
	p := r.data[r.read : r.read+n]
	r.read += n
	return p
}

// Discard drops up to n of the most recently written, still unread bytes.
func (r *Ring) Discard(n int) {
	if n > r.written-r.read {
		n = r.written - r.read
	}
	r.written -= n
}

// Empty reports whether every written byte has been consumed.
func (r *Ring) Empty() bool { return r.written == r.read }

// Len is the number of unread bytes.
func (r *Ring) Len() int { return r.written - r.read }

// Free is how many bytes the next Write can take.
func (r *Ring) Free() int {
	if r.Empty() {
		return len(r.data)
	}
	return len(r.data) - r.written
}

// Cap is the ring capacity.
func (r *Ring) Cap() int { return len(r.data) }
