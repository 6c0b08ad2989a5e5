// Package xseltest provides an in-memory X server that implements enough of
// the core protocol (atoms, window properties, selection ownership, event
// delivery) to run xsel readers and servers against each other in tests.
package xseltest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jezek/xgb/xproto"

	"go.klb.dev/exclip/internal/xsel"
)

// ErrClosed is returned by every request on a closed client.
var ErrClosed = errors.New("xseltest: client closed")

// ErrBadWindow is returned for requests on windows that do not exist.
var ErrBadWindow = errors.New("xseltest: bad window")

// DefaultMaxRequestSize mirrors the core-protocol limit of a typical server.
const DefaultMaxRequestSize = 65535

// firstAtom is the first atom number not predefined by the core protocol.
const firstAtom = 69

type property struct {
	typ    xproto.Atom
	format byte
	data   []byte
}

type window struct {
	client    *Client
	props     map[xproto.Atom]*property
	listeners map[*Client]struct{}
}

// Display is a fake X server. The zero value is not usable; call
// NewDisplay.
type Display struct {
	mu         sync.Mutex
	atoms      map[string]xproto.Atom
	names      map[xproto.Atom]string
	nextAtom   xproto.Atom
	nextWindow xproto.Window
	windows    map[xproto.Window]*window
	owners     map[xproto.Atom]xproto.Window
	maxRequest uint32
	converts   map[xproto.Atom]int
}

// NewDisplay returns an empty display with the predefined atoms.
func NewDisplay() *Display {
	d := &Display{
		atoms:      make(map[string]xproto.Atom),
		names:      make(map[xproto.Atom]string),
		nextAtom:   firstAtom,
		nextWindow: 0x200000,
		windows:    make(map[xproto.Window]*window),
		owners:     make(map[xproto.Atom]xproto.Window),
		maxRequest: DefaultMaxRequestSize,
		converts:   make(map[xproto.Atom]int),
	}
	for name, a := range map[string]xproto.Atom{
		"PRIMARY":   xproto.AtomPrimary,
		"SECONDARY": xproto.AtomSecondary,
		"ATOM":      xproto.AtomAtom,
		"STRING":    xproto.AtomString,
	} {
		d.atoms[name] = a
		d.names[a] = name
	}
	return d
}

// SetMaxRequestSize changes the value reported by MaxRequestSize for
// clients connected afterwards and before.
func (d *Display) SetMaxRequestSize(units uint32) {
	d.mu.Lock()
	d.maxRequest = units
	d.mu.Unlock()
}

// Connect opens a new client with its own window.
func (d *Display) Connect() *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextWindow += 0x100
	c := &Client{
		d:      d,
		win:    d.nextWindow,
		events: make(chan xsel.Event, 4096),
		closed: make(chan struct{}),
	}
	w := &window{
		client:    c,
		props:     make(map[xproto.Atom]*property),
		listeners: make(map[*Client]struct{}),
	}
	// Like xsel.Dial, every client listens on its own window.
	w.listeners[c] = struct{}{}
	d.windows[c.win] = w
	return c
}

// Owner returns the window owning the named selection, or 0.
func (d *Display) Owner(selection string) xproto.Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.atoms[selection]
	if !ok {
		return xproto.WindowNone
	}
	return d.owners[a]
}

// Conversions returns how many ConvertSelection requests named target.
func (d *Display) Conversions(target string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.converts[d.atoms[target]]
}

// intern must be called with d.mu held.
func (d *Display) intern(name string) xproto.Atom {
	if a, ok := d.atoms[name]; ok {
		return a
	}
	a := d.nextAtom
	d.nextAtom++
	d.atoms[name] = a
	d.names[a] = name
	return a
}

// notifyProperty must be called with d.mu held.
func (d *Display) notifyProperty(w *window, win xproto.Window, atom xproto.Atom, state xsel.PropertyState) {
	for l := range w.listeners {
		l.push(xsel.PropertyNotify{Window: win, Atom: atom, State: state})
	}
}

// Client is one connection to a Display. It implements xsel.Conn.
type Client struct {
	d      *Display
	win    xproto.Window
	events chan xsel.Event

	closeOnce sync.Once
	closed    chan struct{}
}

var _ xsel.Conn = (*Client)(nil)

func (c *Client) push(ev xsel.Event) {
	select {
	case <-c.closed:
	case c.events <- ev:
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// lock acquires the display lock unless the client is closed.
func (c *Client) lock() error {
	if c.isClosed() {
		return ErrClosed
	}
	c.d.mu.Lock()
	return nil
}

func (c *Client) Window() xproto.Window { return c.win }

func (c *Client) Atom(name string) (xproto.Atom, error) {
	if err := c.lock(); err != nil {
		return xproto.AtomNone, err
	}
	defer c.d.mu.Unlock()
	return c.d.intern(name), nil
}

func (c *Client) AtomName(a xproto.Atom) string {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if name, ok := c.d.names[a]; ok {
		return name
	}
	return fmt.Sprintf("atom(%d)", a)
}

func (c *Client) ConvertSelection(selection, target, property xproto.Atom) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	c.d.converts[target]++

	owner, ok := c.d.owners[selection]
	if !ok {
		c.push(xsel.SelectionNotify{
			Requestor: c.win,
			Selection: selection,
			Target:    target,
			Property:  xproto.AtomNone,
		})
		return nil
	}
	c.d.windows[owner].client.push(xsel.SelectionRequest{
		Owner:     owner,
		Requestor: c.win,
		Selection: selection,
		Target:    target,
		Property:  property,
	})
	return nil
}

func (c *Client) GetProperty(win xproto.Window, atom xproto.Atom, length uint32) (*xsel.Property, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.d.mu.Unlock()
	w, ok := c.d.windows[win]
	if !ok {
		return nil, ErrBadWindow
	}
	p, ok := w.props[atom]
	if !ok {
		return &xsel.Property{Type: xproto.AtomNone}, nil
	}
	n := min(len(p.data), int(length)*4)
	value := make([]byte, n)
	copy(value, p.data[:n])
	items := 0
	if size := int(p.format / 8); size > 0 {
		items = n / size
	}
	return &xsel.Property{
		Type:       p.typ,
		Format:     p.format,
		Items:      uint32(items),
		BytesAfter: uint32(len(p.data) - n),
		Value:      value,
	}, nil
}

func (c *Client) ChangeProperty(win xproto.Window, atom, typ xproto.Atom, format byte, data []byte) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	w, ok := c.d.windows[win]
	if !ok {
		return ErrBadWindow
	}
	if format != 8 && format != 16 && format != 32 {
		return fmt.Errorf("xseltest: bad format %d", format)
	}
	if uint32(len(data)) > c.d.maxRequest*4 {
		return fmt.Errorf("xseltest: request of %d bytes exceeds maximum", len(data))
	}
	w.props[atom] = &property{typ: typ, format: format, data: append([]byte(nil), data...)}
	c.d.notifyProperty(w, win, atom, xsel.PropertyNewValue)
	return nil
}

func (c *Client) DeleteProperty(win xproto.Window, atom xproto.Atom) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	w, ok := c.d.windows[win]
	if !ok {
		return ErrBadWindow
	}
	if _, ok := w.props[atom]; !ok {
		return nil
	}
	delete(w.props, atom)
	c.d.notifyProperty(w, win, atom, xsel.PropertyDelete)
	return nil
}

func (c *Client) SelectWindowEvents(win xproto.Window) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	w, ok := c.d.windows[win]
	if !ok {
		return ErrBadWindow
	}
	w.listeners[c] = struct{}{}
	return nil
}

func (c *Client) SetSelectionOwner(selection xproto.Atom) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	prev, had := c.d.owners[selection]
	c.d.owners[selection] = c.win
	if had && prev != c.win {
		if w, ok := c.d.windows[prev]; ok {
			w.client.push(xsel.SelectionClear{Owner: prev, Selection: selection})
		}
	}
	return nil
}

func (c *Client) SendSelectionNotify(req xsel.SelectionRequest, atom xproto.Atom) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	w, ok := c.d.windows[req.Requestor]
	if !ok {
		return ErrBadWindow
	}
	w.client.push(xsel.SelectionNotify{
		Requestor: req.Requestor,
		Selection: req.Selection,
		Target:    req.Target,
		Property:  atom,
		Time:      req.Time,
	})
	return nil
}

func (c *Client) Flush() error {
	if c.isClosed() {
		return ErrClosed
	}
	return nil
}

func (c *Client) NextEvent(ctx context.Context) (xsel.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	case ev := <-c.events:
		return ev, nil
	}
}

func (c *Client) MaxRequestSize() uint32 {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.d.maxRequest
}

// Close destroys the client's window and drops the selections it owns, as
// the X server does when a client disconnects. Other clients listening on
// the window get a DestroyNotify.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.d.mu.Lock()
		defer c.d.mu.Unlock()
		close(c.closed)
		for sel, owner := range c.d.owners {
			if owner == c.win {
				delete(c.d.owners, sel)
			}
		}
		for _, w := range c.d.windows {
			delete(w.listeners, c)
		}
		if w, ok := c.d.windows[c.win]; ok {
			for l := range w.listeners {
				l.push(xsel.DestroyNotify{Window: c.win})
			}
		}
		delete(c.d.windows, c.win)
	})
	return nil
}
