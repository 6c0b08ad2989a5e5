package xsel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// minChunkSize is used when the connection reports no usable request size.
const minChunkSize = 1024

// Config configures a Server.
type Config struct {
	// Selection is the name of the selection to own, e.g. "CLIPBOARD".
	Selection string
	// Data is served to every requestor. It is never modified.
	Data []byte
	// ChunkSize is the largest payload sent in one property write. Zero
	// derives it from the connection's maximum request size.
	ChunkSize int
}

type transferKey struct {
	requestor xproto.Window
	property  xproto.Atom
}

// transfer is one requestor in the middle of an INCR sequence.
type transfer struct {
	requestor xproto.Window
	property  xproto.Atom
	offset    int
}

// Status is a point-in-time view of a Server, safe to take from any
// goroutine.
type Status struct {
	Cleared  bool
	InFlight int
	Served   int64
}

// Server owns one selection and answers conversion requests for it.
type Server struct {
	conn      Conn
	name      string
	data      []byte
	chunkSize int

	selection xproto.Atom
	utf8      xproto.Atom
	targets   xproto.Atom
	incr      xproto.Atom

	transfers map[transferKey]*transfer
	cleared   bool

	stCleared  atomic.Bool
	stInFlight atomic.Int32
	stServed   atomic.Int64
}

// NewServer interns the atoms the server needs and fixes its chunk size.
// It does not claim the selection; Serve does.
func NewServer(conn Conn, cfg Config) (*Server, error) {
	s := &Server{
		conn:      conn,
		name:      cfg.Selection,
		data:      cfg.Data,
		chunkSize: cfg.ChunkSize,
		transfers: make(map[transferKey]*transfer),
	}
	for _, a := range []struct {
		name string
		dst  *xproto.Atom
	}{
		{cfg.Selection, &s.selection},
		{AtomNameUTF8, &s.utf8},
		{AtomNameTargets, &s.targets},
		{AtomNameIncr, &s.incr},
	} {
		atom, err := conn.Atom(a.name)
		if err != nil {
			return nil, fmt.Errorf("intern %s: %w", a.name, err)
		}
		*a.dst = atom
	}
	if s.chunkSize <= 0 {
		s.chunkSize = int(conn.MaxRequestSize() / 4)
	}
	if s.chunkSize <= 0 {
		s.chunkSize = minChunkSize
	}
	return s, nil
}

// ChunkSize returns the payload size above which INCR is used, which is
// also the size of each INCR chunk.
func (s *Server) ChunkSize() int { return s.chunkSize }

// Status returns a snapshot of the server state.
func (s *Server) Status() Status {
	return Status{
		Cleared:  s.stCleared.Load(),
		InFlight: int(s.stInFlight.Load()),
		Served:   s.stServed.Load(),
	}
}

// Serve claims the selection and answers requests until ownership has been
// lost and no INCR transfer is in flight, in which case it returns nil.
// When ctx is done Serve returns ctx.Err() at once; transfers in flight are
// abandoned.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.conn.SetSelectionOwner(s.selection); err != nil {
		return fmt.Errorf("claim %s: %w", s.name, err)
	}
	slog.Debug("selection claimed",
		"selection", s.name,
		"size", len(s.data),
		"chunk_size", s.chunkSize,
	)

	for !s.finished() {
		ev, err := s.conn.NextEvent(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("next event: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handle(ev); err != nil {
			slog.Warn("selection request failed", "selection", s.name, "err", err)
		}
		s.publish()
	}
	slog.Debug("selection released", "selection", s.name, "served", s.stServed.Load())
	return nil
}

func (s *Server) finished() bool {
	return s.cleared && len(s.transfers) == 0
}

func (s *Server) publish() {
	s.stCleared.Store(s.cleared)
	s.stInFlight.Store(int32(len(s.transfers)))
}

// handle dispatches one event. Errors concern a single requestor and leave
// the server running.
func (s *Server) handle(ev Event) error {
	switch e := ev.(type) {
	case SelectionRequest:
		return s.handleRequest(e)
	case PropertyNotify:
		return s.handlePropertyNotify(e)
	case DestroyNotify:
		s.dropRequestor(e.Window)
	case SelectionClear:
		if e.Selection == s.selection {
			s.cleared = true
			slog.Debug("selection ownership lost",
				"selection", s.name,
				"in_flight", len(s.transfers),
			)
		}
	}
	return nil
}

func (s *Server) handleRequest(e SelectionRequest) error {
	if e.Selection != s.selection {
		return s.refuse(e, fmt.Errorf("request for foreign selection %s", s.conn.AtomName(e.Selection)))
	}
	// Obsolete requestors pass None and expect the target as property.
	property := e.Property
	if property == xproto.AtomNone {
		property = e.Target
	}
	key := transferKey{requestor: e.Requestor, property: property}
	if _, busy := s.transfers[key]; busy {
		return nil
	}

	var err error
	switch {
	case e.Target == s.targets:
		err = s.conn.ChangeProperty(e.Requestor, property, xproto.AtomAtom, 32, packAtoms(s.targets, s.utf8))

	case len(s.data) > s.chunkSize:
		if err = s.conn.SelectWindowEvents(e.Requestor); err != nil {
			break
		}
		if err = s.conn.ChangeProperty(e.Requestor, property, s.incr, 32, nil); err != nil {
			break
		}
		s.transfers[key] = &transfer{requestor: e.Requestor, property: property}
		if debugEnabled() {
			slog.Debug("incremental transfer announced",
				"requestor", e.Requestor,
				"property", s.conn.AtomName(property),
				"size", len(s.data),
			)
		}

	default:
		err = s.conn.ChangeProperty(e.Requestor, property, s.utf8, 8, s.data)
		if err == nil {
			s.stServed.Add(1)
		}
	}
	if err != nil {
		delete(s.transfers, key)
		return s.refuse(e, err)
	}

	if err := s.conn.SendSelectionNotify(e, property); err != nil {
		delete(s.transfers, key)
		return fmt.Errorf("notify requestor %d: %w", e.Requestor, err)
	}
	return s.conn.Flush()
}

// refuse answers e with property None and returns cause.
func (s *Server) refuse(e SelectionRequest, cause error) error {
	if err := s.conn.SendSelectionNotify(e, xproto.AtomNone); err != nil {
		return errors.Join(cause, fmt.Errorf("refuse requestor %d: %w", e.Requestor, err))
	}
	_ = s.conn.Flush()
	return cause
}

func (s *Server) handlePropertyNotify(e PropertyNotify) error {
	if e.State != PropertyDelete {
		return nil
	}
	key := transferKey{requestor: e.Window, property: e.Atom}
	t, ok := s.transfers[key]
	if !ok {
		return nil
	}

	n := min(s.chunkSize, len(s.data)-t.offset)
	if err := s.conn.ChangeProperty(t.requestor, t.property, s.utf8, 8, s.data[t.offset:t.offset+n]); err != nil {
		delete(s.transfers, key)
		return fmt.Errorf("write chunk at %d: %w", t.offset, err)
	}
	if err := s.conn.Flush(); err != nil {
		delete(s.transfers, key)
		return fmt.Errorf("flush: %w", err)
	}
	t.offset += n

	if n == 0 {
		delete(s.transfers, key)
		s.stServed.Add(1)
		slog.Debug("incremental transfer complete", "requestor", t.requestor, "size", t.offset)
	}
	return nil
}

// dropRequestor abandons the transfers of a requestor whose window is gone;
// it will never delete another property.
func (s *Server) dropRequestor(win xproto.Window) {
	for key := range s.transfers {
		if key.requestor == win {
			delete(s.transfers, key)
			slog.Debug("requestor destroyed, transfer dropped", "requestor", win)
		}
	}
}

func packAtoms(atoms ...xproto.Atom) []byte {
	buf := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		xgb.Put32(buf[4*i:], uint32(a))
	}
	return buf
}
