package xsel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/require"

	"go.klb.dev/exclip/internal/xsel"
	"go.klb.dev/exclip/internal/xsel/xseltest"
)

const testProperty = "TEST_SEL_DATA"

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func atom(t *testing.T, c xsel.Conn, name string) xproto.Atom {
	t.Helper()
	a, err := c.Atom(name)
	require.NoError(t, err)
	return a
}

// startServer runs an xsel.Server on a fresh client and waits until it owns
// the selection. The returned channel yields Serve's result.
func startServer(t *testing.T, ctx context.Context, d *xseltest.Display, cfg xsel.Config) (*xseltest.Client, *xsel.Server, <-chan error) {
	t.Helper()
	holder := d.Connect()
	t.Cleanup(func() { _ = holder.Close() })

	srv, err := xsel.NewServer(holder, cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return d.Owner(cfg.Selection) == holder.Window()
	}, time.Second, time.Millisecond)
	return holder, srv, errCh
}

// requestor drives the requestor side of the protocol by hand.
type requestor struct {
	t        *testing.T
	c        *xseltest.Client
	property xproto.Atom
}

func newRequestor(t *testing.T, d *xseltest.Display) *requestor {
	t.Helper()
	c := d.Connect()
	t.Cleanup(func() { _ = c.Close() })
	return &requestor{t: t, c: c, property: atom(t, c, testProperty)}
}

// convert requests selection as target and returns the notified property,
// or None.
func (r *requestor) convert(ctx context.Context, selection, target string) xproto.Atom {
	r.t.Helper()
	sel := atom(r.t, r.c, selection)
	tgt := atom(r.t, r.c, target)
	require.NoError(r.t, r.c.ConvertSelection(sel, tgt, r.property))
	for {
		ev, err := r.c.NextEvent(ctx)
		require.NoError(r.t, err)
		if n, ok := ev.(xsel.SelectionNotify); ok {
			return n.Property
		}
	}
}

// read returns the full value of the requestor's property.
func (r *requestor) read() *xsel.Property {
	r.t.Helper()
	p, err := r.c.GetProperty(r.c.Window(), r.property, 1<<20)
	require.NoError(r.t, err)
	return p
}

func (r *requestor) remove() {
	r.t.Helper()
	require.NoError(r.t, r.c.DeleteProperty(r.c.Window(), r.property))
}

// nextChunk waits for the owner to write the property again.
func (r *requestor) nextChunk(ctx context.Context) []byte {
	r.t.Helper()
	for {
		ev, err := r.c.NextEvent(ctx)
		require.NoError(r.t, err)
		n, ok := ev.(xsel.PropertyNotify)
		if ok && n.Atom == r.property && n.State == xsel.PropertyNewValue {
			return r.read().Value
		}
	}
}

// quiet fails the test if the property receives a new value within d.
func (r *requestor) quiet(d time.Duration) {
	r.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	for {
		ev, err := r.c.NextEvent(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return
		}
		require.NoError(r.t, err)
		if n, ok := ev.(xsel.PropertyNotify); ok && n.Atom == r.property && n.State == xsel.PropertyNewValue {
			r.t.Fatalf("unexpected property write after transfer ended")
		}
	}
}

// incr performs a full INCR read after the marker has been seen, returning
// every chunk including the terminating empty one.
func (r *requestor) incr(ctx context.Context) [][]byte {
	r.t.Helper()
	var chunks [][]byte
	r.remove()
	for {
		chunk := r.nextChunk(ctx)
		chunks = append(chunks, chunk)
		r.remove()
		if len(chunk) == 0 {
			return chunks
		}
	}
}

// owner is a scripted selection owner.
type owner struct {
	c   *xseltest.Client
	sel xproto.Atom
}

// newOwner claims selection and calls respond for every request until the
// test ends. respond runs on the owner's event goroutine and also receives
// the owner's other events.
func newOwner(t *testing.T, d *xseltest.Display, selection string, respond func(o *owner, ev xsel.Event)) *owner {
	t.Helper()
	c := d.Connect()
	o := &owner{c: c, sel: atom(t, c, selection)}
	require.NoError(t, c.SetSelectionOwner(o.sel))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, err := c.NextEvent(ctx)
			if err != nil {
				return
			}
			respond(o, ev)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = c.Close()
	})
	return o
}
