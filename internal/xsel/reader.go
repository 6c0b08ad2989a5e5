package xsel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jezek/xgb/xproto"
)

// readPhase is the requestor-side protocol state.
type readPhase int

const (
	phaseNone readPhase = iota
	phaseSentConversion
	phaseIncr
	phaseBadTarget
)

func (p readPhase) String() string {
	switch p {
	case phaseNone:
		return "none"
	case phaseSentConversion:
		return "sent-conversion"
	case phaseIncr:
		return "incr"
	case phaseBadTarget:
		return "bad-target"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// reader holds the state of one conversion of one selection.
type reader struct {
	conn      Conn
	win       xproto.Window
	selection xproto.Atom
	target    xproto.Atom
	property  xproto.Atom
	incr      xproto.Atom

	phase readPhase
	buf   []byte
	typ   xproto.Atom
}

// Acquire reads selection from its current owner, asking for target first.
// When target is UTF8_STRING and the owner cannot provide it, the
// conversion is retried once with STRING. Acquire blocks until the transfer
// completes, fails, or ctx is done.
func Acquire(ctx context.Context, conn Conn, selection, target string) ([]byte, error) {
	sel, err := conn.Atom(selection)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", selection, err)
	}
	tgt, err := conn.Atom(target)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", target, err)
	}
	utf8, err := conn.Atom(AtomNameUTF8)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", AtomNameUTF8, err)
	}
	prop, err := conn.Atom(propertyName)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", propertyName, err)
	}
	incr, err := conn.Atom(AtomNameIncr)
	if err != nil {
		return nil, fmt.Errorf("intern %s: %w", AtomNameIncr, err)
	}

	r := &reader{
		conn:      conn,
		win:       conn.Window(),
		selection: sel,
		target:    tgt,
		property:  prop,
		incr:      incr,
	}

	for {
		data, err := r.run(ctx)
		if err != nil {
			return nil, err
		}
		if r.phase != phaseBadTarget {
			if debugEnabled() {
				slog.Debug("selection acquired",
					"selection", selection,
					"type", conn.AtomName(r.typ),
					"size", len(data),
				)
			}
			return data, nil
		}
		if r.target != utf8 {
			return nil, &TargetError{Target: conn.AtomName(r.target)}
		}
		slog.Debug("target refused, falling back",
			"selection", selection,
			"target", AtomNameUTF8,
			"fallback", AtomNameString,
		)
		r.target = xproto.AtomString
		r.phase = phaseNone
	}
}

// run performs one conversion attempt. It returns with r.phase set to
// phaseBadTarget if the owner refused the target, or phaseNone with the
// received bytes.
func (r *reader) run(ctx context.Context) ([]byte, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	for {
		ev, err := r.conn.NextEvent(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", r.phase, err)
		}
		done, err := r.step(ev)
		if err != nil {
			return nil, err
		}
		if done {
			return r.buf, nil
		}
		if r.phase == phaseBadTarget {
			return nil, nil
		}
	}
}

// begin discards any partial result and requests the conversion.
func (r *reader) begin() error {
	r.buf = nil
	r.typ = xproto.AtomNone
	if err := r.conn.ConvertSelection(r.selection, r.target, r.property); err != nil {
		return fmt.Errorf("convert selection: %w", err)
	}
	if err := r.conn.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	r.phase = phaseSentConversion
	return nil
}

// step advances the state machine by one event and reports whether the
// transfer completed. Events that do not concern this transfer are ignored.
func (r *reader) step(ev Event) (bool, error) {
	switch r.phase {
	case phaseSentConversion:
		e, ok := ev.(SelectionNotify)
		if !ok || e.Requestor != r.win || e.Selection != r.selection {
			return false, nil
		}
		if e.Property == xproto.AtomNone {
			r.phase = phaseBadTarget
			return false, nil
		}
		return r.receive()

	case phaseIncr:
		e, ok := ev.(PropertyNotify)
		if !ok || e.State != PropertyNewValue || e.Window != r.win || e.Atom != r.property {
			return false, nil
		}
		return r.receiveChunk()
	}
	return false, nil
}

// receive handles the property announced by SelectionNotify: either the
// whole value or the INCR marker.
func (r *reader) receive() (bool, error) {
	peek, err := r.conn.GetProperty(r.win, r.property, 0)
	if err != nil {
		return false, fmt.Errorf("peek property: %w", err)
	}
	r.typ = peek.Type

	if peek.Type == r.incr {
		// Deleting the marker tells the owner to send the first chunk.
		if err := r.conn.DeleteProperty(r.win, r.property); err != nil {
			return false, fmt.Errorf("delete property: %w", err)
		}
		if err := r.conn.Flush(); err != nil {
			return false, fmt.Errorf("flush: %w", err)
		}
		r.phase = phaseIncr
		if debugEnabled() {
			slog.Debug("incremental transfer started", "property", r.conn.AtomName(r.property))
		}
		return false, nil
	}

	p, err := r.conn.GetProperty(r.win, r.property, words(peek.BytesAfter))
	if err != nil {
		return false, fmt.Errorf("read property: %w", err)
	}
	if err := r.conn.DeleteProperty(r.win, r.property); err != nil {
		return false, fmt.Errorf("delete property: %w", err)
	}
	value, err := payload(p)
	if err != nil {
		return false, err
	}
	r.buf = make([]byte, len(value))
	copy(r.buf, value)
	r.phase = phaseNone
	return true, nil
}

// receiveChunk appends one INCR chunk. A zero-length chunk ends the
// transfer.
func (r *reader) receiveChunk() (bool, error) {
	peek, err := r.conn.GetProperty(r.win, r.property, 0)
	if err != nil {
		return false, fmt.Errorf("peek chunk: %w", err)
	}
	if peek.BytesAfter == 0 {
		if err := r.conn.DeleteProperty(r.win, r.property); err != nil {
			return false, fmt.Errorf("delete property: %w", err)
		}
		r.phase = phaseNone
		return true, nil
	}

	p, err := r.conn.GetProperty(r.win, r.property, words(peek.BytesAfter))
	if err != nil {
		return false, fmt.Errorf("read chunk: %w", err)
	}
	value, err := payload(p)
	if err != nil {
		return false, err
	}
	r.buf = append(r.buf, value...)
	r.typ = p.Type

	if err := r.conn.DeleteProperty(r.win, r.property); err != nil {
		return false, fmt.Errorf("delete property: %w", err)
	}
	if err := r.conn.Flush(); err != nil {
		return false, fmt.Errorf("flush: %w", err)
	}
	slog.Debug("incremental chunk received", "size", len(value), "total", len(r.buf))
	return false, nil
}

// payload returns exactly Items*itemSize(Format) bytes of p.
func payload(p *Property) ([]byte, error) {
	n := p.Size()
	if n > len(p.Value) {
		return nil, fmt.Errorf("short property: %d items of format %d in %d bytes",
			p.Items, p.Format, len(p.Value))
	}
	return p.Value[:n], nil
}
