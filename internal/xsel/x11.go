package xsel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// ErrClosed is returned by NextEvent once the connection is gone.
var ErrClosed = errors.New("x11 connection closed")

// X11 is a Conn backed by a jezek/xgb connection.
type X11 struct {
	conn   *xgb.Conn
	win    xproto.Window
	maxReq uint32

	events chan Event
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// Dial opens display (empty means $DISPLAY) and creates the 1x1 window the
// protocol runs on. Failures are returned as *ConnectionError.
func Dial(display string) (*X11, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, &ConnectionError{Display: display, Err: err}
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{Display: display, Err: fmt.Errorf("window id: %w", err)}
	}
	err = xproto.CreateWindowChecked(
		conn, screen.RootDepth, wid, screen.Root, 0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange},
	).Check()
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{Display: display, Err: fmt.Errorf("create window: %w", err)}
	}

	x := &X11{
		conn: conn,
		win:  wid,
		// xgb encodes request lengths in 16 bits, so BIG-REQUESTS is
		// never enabled and the core limit applies.
		maxReq: uint32(setup.MaximumRequestLength),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		atoms: map[string]xproto.Atom{
			AtomNamePrimary: xproto.AtomPrimary,
			AtomNameString:  xproto.AtomString,
			"ATOM":          xproto.AtomAtom,
		},
	}
	go x.pump()
	return x, nil
}

// pump forwards selection-related events until the connection closes.
func (x *X11) pump() {
	defer close(x.events)
	for {
		ev, xerr := x.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			slog.Debug("x11 error", "err", xerr)
			continue
		}
		e := translate(ev)
		if e == nil {
			continue
		}
		select {
		case x.events <- e:
		case <-x.done:
			return
		}
	}
}

func translate(ev xgb.Event) Event {
	switch e := ev.(type) {
	case xproto.SelectionNotifyEvent:
		return SelectionNotify{
			Requestor: e.Requestor,
			Selection: e.Selection,
			Target:    e.Target,
			Property:  e.Property,
			Time:      e.Time,
		}
	case xproto.SelectionRequestEvent:
		return SelectionRequest{
			Owner:     e.Owner,
			Requestor: e.Requestor,
			Selection: e.Selection,
			Target:    e.Target,
			Property:  e.Property,
			Time:      e.Time,
		}
	case xproto.SelectionClearEvent:
		return SelectionClear{
			Owner:     e.Owner,
			Selection: e.Selection,
			Time:      e.Time,
		}
	case xproto.PropertyNotifyEvent:
		return PropertyNotify{
			Window: e.Window,
			Atom:   e.Atom,
			State:  PropertyState(e.State),
			Time:   e.Time,
		}
	case xproto.DestroyNotifyEvent:
		return DestroyNotify{Window: e.Window}
	}
	return nil
}

func (x *X11) Window() xproto.Window { return x.win }

func (x *X11) Atom(name string) (xproto.Atom, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if a, ok := x.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return xproto.AtomNone, err
	}
	x.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (x *X11) AtomName(a xproto.Atom) string {
	if a == xproto.AtomNone {
		return "None"
	}
	reply, err := xproto.GetAtomName(x.conn, a).Reply()
	if err != nil {
		return fmt.Sprintf("atom(%d)", a)
	}
	return reply.Name
}

func (x *X11) ConvertSelection(selection, target, property xproto.Atom) error {
	return xproto.ConvertSelectionChecked(
		x.conn, x.win, selection, target, property, xproto.TimeCurrentTime,
	).Check()
}

func (x *X11) GetProperty(win xproto.Window, property xproto.Atom, length uint32) (*Property, error) {
	reply, err := xproto.GetProperty(
		x.conn, false, win, property, xproto.GetPropertyTypeAny, 0, length,
	).Reply()
	if err != nil {
		return nil, err
	}
	return &Property{
		Type:       reply.Type,
		Format:     reply.Format,
		Items:      reply.ValueLen,
		BytesAfter: reply.BytesAfter,
		Value:      reply.Value,
	}, nil
}

func (x *X11) ChangeProperty(win xproto.Window, property, typ xproto.Atom, format byte, data []byte) error {
	var items uint32
	if size := itemSize(format); size > 0 {
		items = uint32(len(data) / size)
	}
	return xproto.ChangePropertyChecked(
		x.conn, xproto.PropModeReplace, win, property, typ, format, items, data,
	).Check()
}

func (x *X11) DeleteProperty(win xproto.Window, property xproto.Atom) error {
	return xproto.DeletePropertyChecked(x.conn, win, property).Check()
}

func (x *X11) SelectWindowEvents(win xproto.Window) error {
	return xproto.ChangeWindowAttributesChecked(
		x.conn, win, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange | xproto.EventMaskStructureNotify},
	).Check()
}

func (x *X11) SetSelectionOwner(selection xproto.Atom) error {
	err := xproto.SetSelectionOwnerChecked(x.conn, x.win, selection, xproto.TimeCurrentTime).Check()
	if err != nil {
		return err
	}
	reply, err := xproto.GetSelectionOwner(x.conn, selection).Reply()
	if err != nil {
		return err
	}
	if reply.Owner != x.win {
		return ErrNotOwner
	}
	return nil
}

func (x *X11) SendSelectionNotify(req SelectionRequest, property xproto.Atom) error {
	ev := xproto.SelectionNotifyEvent{
		Time:      req.Time,
		Requestor: req.Requestor,
		Selection: req.Selection,
		Target:    req.Target,
		Property:  property,
	}
	return xproto.SendEventChecked(
		x.conn, false, req.Requestor, xproto.EventMaskNoEvent, string(ev.Bytes()),
	).Check()
}

// Flush is a no-op: xgb writes every request as it is issued and all
// requests above are checked.
func (x *X11) Flush() error { return nil }

func (x *X11) NextEvent(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-x.events:
		if !ok {
			return nil, ErrClosed
		}
		return ev, nil
	}
}

func (x *X11) MaxRequestSize() uint32 { return x.maxReq }

func (x *X11) Close() error {
	x.once.Do(func() {
		close(x.done)
		xproto.DestroyWindow(x.conn, x.win)
		x.conn.Close()
	})
	return nil
}
