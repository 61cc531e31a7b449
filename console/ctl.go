package console

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	errBlindRaw   = errors.New("no raw mode in blind mode")
	errUnknownCtl = errors.New("unknown control message")
)

// Ctl applies the control messages written to consctl.
// Messages:
//
//	rawon	stop echoing input to the output stream
//	rawoff	echo input again
type Ctl struct {
	blind bool
	raw   bool
}

// Write processes one control message.
func (c *Ctl) Write(data []byte) error {
	if c.blind {
		return errBlindRaw
	}
	switch strings.TrimSpace(string(data)) {
	case "rawon":
		c.raw = true
	case "rawoff":
		c.raw = false
	default:
		return errUnknownCtl
	}
	return nil
}

// Echo reports whether input should be copied to the output stream.
func (c *Ctl) Echo() bool { return !c.raw && !c.blind }

// Raw reports whether raw mode is on.
func (c *Ctl) Raw() bool { return c.raw }
