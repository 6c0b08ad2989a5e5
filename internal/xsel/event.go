package xsel

import "github.com/jezek/xgb/xproto"

// Event is one of SelectionNotify, SelectionRequest, SelectionClear,
// PropertyNotify or DestroyNotify. Connections drop every other X11 event.
type Event interface {
	isEvent()
}

// SelectionNotify is the owner's (or the server's) answer to a
// ConvertSelection. Property is xproto.AtomNone when the conversion failed.
type SelectionNotify struct {
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
	Time      xproto.Timestamp
}

// SelectionRequest is delivered to a selection owner when a requestor calls
// ConvertSelection.
type SelectionRequest struct {
	Owner     xproto.Window
	Requestor xproto.Window
	Selection xproto.Atom
	Target    xproto.Atom
	Property  xproto.Atom
	Time      xproto.Timestamp
}

// SelectionClear tells the previous owner that another client took the
// selection.
type SelectionClear struct {
	Owner     xproto.Window
	Selection xproto.Atom
	Time      xproto.Timestamp
}

// PropertyState is the State field of a PropertyNotify.
type PropertyState byte

const (
	PropertyNewValue PropertyState = xproto.PropertyNewValue
	PropertyDelete   PropertyState = xproto.PropertyDelete
)

func (s PropertyState) String() string {
	if s == PropertyDelete {
		return "delete"
	}
	return "new-value"
}

// PropertyNotify reports a property change on a window we listen on.
type PropertyNotify struct {
	Window xproto.Window
	Atom   xproto.Atom
	State  PropertyState
	Time   xproto.Timestamp
}

// DestroyNotify reports that a window selected with SelectWindowEvents was
// destroyed, usually because its client disconnected.
type DestroyNotify struct {
	Window xproto.Window
}

func (SelectionNotify) isEvent()  {}
func (SelectionRequest) isEvent() {}
func (SelectionClear) isEvent()   {}
func (PropertyNotify) isEvent()   {}
func (DestroyNotify) isEvent()    {}
