// Package xsel implements both sides of the X11 selection transfer protocol
// (ICCCM section 2): reading a selection from its current owner, single-shot
// or INCR, and owning a selection while answering requestors.
//
// The protocol code talks to the display through the Conn interface. Dial
// returns the jezek/xgb implementation; xseltest provides an in-memory fake
// display for tests.
package xsel

import (
	"context"
	"log/slog"

	"github.com/jezek/xgb/xproto"
)

// Atom names used by the protocol.
const (
	AtomNamePrimary   = "PRIMARY"
	AtomNameClipboard = "CLIPBOARD"
	AtomNameUTF8      = "UTF8_STRING"
	AtomNameString    = "STRING"
	AtomNameTargets   = "TARGETS"
	AtomNameIncr      = "INCR"

	// propertyName is the private property on our own window that
	// conversions are delivered into.
	propertyName = "EXCLIP_OUT"
)

// Conn is the subset of an X11 client connection that the selection
// protocol needs. Every Conn owns one small unmapped window that receives
// PropertyChange events.
type Conn interface {
	// Window returns the connection's own window.
	Window() xproto.Window

	// Atom interns name.
	Atom(name string) (xproto.Atom, error)
	// AtomName returns the name of a, or a numeric placeholder.
	AtomName(a xproto.Atom) string

	// ConvertSelection asks the owner of selection to convert it to target
	// and store the result in property on Window().
	ConvertSelection(selection, target, property xproto.Atom) error

	// GetProperty reads up to length 32-bit units of property on win
	// without deleting it. A length of zero peeks at type and size only.
	GetProperty(win xproto.Window, property xproto.Atom, length uint32) (*Property, error)
	// ChangeProperty replaces property on win. format is 8, 16 or 32 and
	// len(data) must be a multiple of format/8.
	ChangeProperty(win xproto.Window, property, typ xproto.Atom, format byte, data []byte) error
	DeleteProperty(win xproto.Window, property xproto.Atom) error
	// SelectWindowEvents subscribes to PropertyNotify and DestroyNotify
	// events on a foreign window.
	SelectWindowEvents(win xproto.Window) error

	// SetSelectionOwner makes Window() the owner of selection and returns
	// an error if the server did not grant it.
	SetSelectionOwner(selection xproto.Atom) error
	// SendSelectionNotify tells the requestor of req that property is
	// ready (or, with xproto.AtomNone, that the conversion was refused).
	SendSelectionNotify(req SelectionRequest, property xproto.Atom) error

	Flush() error

	// NextEvent blocks until the next selection-related event arrives or
	// ctx is done.
	NextEvent(ctx context.Context) (Event, error)

	// MaxRequestSize is the largest request the server accepts, in 4-byte
	// units.
	MaxRequestSize() uint32

	Close() error
}

// Property is the reply to a GetProperty request.
type Property struct {
	Type       xproto.Atom
	Format     byte
	Items      uint32 // number of format-sized items in Value
	BytesAfter uint32 // bytes left unread
	Value      []byte
}

// Size returns the number of payload bytes the reply carries.
func (p *Property) Size() int {
	return int(p.Items) * itemSize(p.Format)
}

// itemSize maps a property format to the width of one item in bytes.
func itemSize(format byte) int {
	switch format {
	case 8:
		return 1
	case 16:
		return 2
	case 32:
		return 4
	default:
		return 0
	}
}

// words converts a byte count to the 32-bit units GetProperty expects.
func words(n uint32) uint32 {
	return (n + 3) / 4
}

// debugEnabled reports whether debug records would be written. AtomName is a
// server round trip on a real display, so log sites that name atoms check it
// first.
func debugEnabled() bool {
	return slog.Default().Enabled(context.Background(), slog.LevelDebug)
}
