package xsel_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/exclip/internal/xsel"
	"go.klb.dev/exclip/internal/xsel/xseltest"
)

func TestAcquireFallsBackToString(t *testing.T) {
	ctx := testContext(t)
	d := xseltest.NewDisplay()
	newOwner(t, d, "PRIMARY", func(o *owner, ev xsel.Event) {
		req, ok := ev.(xsel.SelectionRequest)
		if !ok {
			return
		}
		if req.Target != xproto.AtomString {
			_ = o.c.SendSelectionNotify(req, xproto.AtomNone)
			return
		}
		_ = o.c.ChangeProperty(req.Requestor, req.Property, xproto.AtomString, 8, []byte("latin-1 text"))
		_ = o.c.SendSelectionNotify(req, req.Property)
	})

	reader := d.Connect()
	defer reader.Close()

	data, err := xsel.Acquire(ctx, reader, xsel.AtomNamePrimary, xsel.AtomNameUTF8)
	require.NoError(t, err)
	assert.Equal(t, "latin-1 text", string(data))
	assert.Equal(t, 1, d.Conversions(xsel.AtomNameUTF8))
	assert.Equal(t, 1, d.Conversions(xsel.AtomNameString))
}

func TestAcquireNoTargetAvailable(t *testing.T) {
	ctx := testContext(t)
	d := xseltest.NewDisplay()
	newOwner(t, d, "PRIMARY", func(o *owner, ev xsel.Event) {
		if req, ok := ev.(xsel.SelectionRequest); ok {
			_ = o.c.SendSelectionNotify(req, xproto.AtomNone)
		}
	})

	reader := d.Connect()
	defer reader.Close()

	_, err := xsel.Acquire(ctx, reader, xsel.AtomNamePrimary, xsel.AtomNameUTF8)
	require.ErrorIs(t, err, xsel.ErrTargetUnavailable)

	var terr *xsel.TargetError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, xsel.AtomNameString, terr.Target)
	assert.EqualError(t, err, "target STRING not available")
	assert.Equal(t, 2, d.Conversions(xsel.AtomNameUTF8)+d.Conversions(xsel.AtomNameString))
}

func TestAcquireWithoutOwner(t *testing.T) {
	ctx := testContext(t)
	d := xseltest.NewDisplay()
	reader := d.Connect()
	defer reader.Close()

	_, err := xsel.Acquire(ctx, reader, xsel.AtomNameClipboard, xsel.AtomNameUTF8)
	require.ErrorIs(t, err, xsel.ErrTargetUnavailable)
	assert.Equal(t, 1, d.Conversions(xsel.AtomNameUTF8))
	assert.Equal(t, 1, d.Conversions(xsel.AtomNameString))
}

func TestAcquireStringTargetIsNotRetried(t *testing.T) {
	ctx := testContext(t)
	d := xseltest.NewDisplay()
	reader := d.Connect()
	defer reader.Close()

	_, err := xsel.Acquire(ctx, reader, xsel.AtomNamePrimary, xsel.AtomNameString)
	require.ErrorIs(t, err, xsel.ErrTargetUnavailable)
	assert.Equal(t, 0, d.Conversions(xsel.AtomNameUTF8))
	assert.Equal(t, 1, d.Conversions(xsel.AtomNameString))
}

func TestAcquireIncrementalGrowth(t *testing.T) {
	sizes := []int{5, 1, 300, 7, 0}
	var chunks [][]byte
	var want []byte
	for i, n := range sizes {
		chunk := bytes.Repeat([]byte{byte('a' + i)}, n)
		chunks = append(chunks, chunk)
		want = append(want, chunk...)
	}

	ctx := testContext(t)
	d := xseltest.NewDisplay()
	reader := d.Connect()
	defer reader.Close()
	incr := atom(t, reader, xsel.AtomNameIncr)
	utf8 := atom(t, reader, xsel.AtomNameUTF8)

	var (
		requestor xproto.Window
		property  xproto.Atom
		next      int
	)
	newOwner(t, d, "CLIPBOARD", func(o *owner, ev xsel.Event) {
		switch e := ev.(type) {
		case xsel.SelectionRequest:
			requestor, property = e.Requestor, e.Property
			_ = o.c.SelectWindowEvents(e.Requestor)
			_ = o.c.ChangeProperty(e.Requestor, e.Property, incr, 32, nil)
			_ = o.c.SendSelectionNotify(e, e.Property)
		case xsel.PropertyNotify:
			if e.Window != requestor || e.Atom != property || e.State != xsel.PropertyDelete || next >= len(chunks) {
				return
			}
			_ = o.c.ChangeProperty(requestor, property, utf8, 8, chunks[next])
			next++
		}
	})

	data, err := xsel.Acquire(ctx, reader, xsel.AtomNameClipboard, xsel.AtomNameUTF8)
	require.NoError(t, err)
	assert.Len(t, data, 5+1+300+7)
	assert.Equal(t, want, data)
}

func TestAcquireItemSizeFromFormat(t *testing.T) {
	tests := []struct {
		name   string
		format byte
		value  []byte
	}{
		{"format8", 8, []byte("abc")},
		{"format16", 16, []byte{1, 0, 2, 0, 3, 0}},
		{"format32", 32, []byte{1, 0, 0, 0, 2, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			d := xseltest.NewDisplay()
			newOwner(t, d, "PRIMARY", func(o *owner, ev xsel.Event) {
				if req, ok := ev.(xsel.SelectionRequest); ok {
					_ = o.c.ChangeProperty(req.Requestor, req.Property, req.Target, tt.format, tt.value)
					_ = o.c.SendSelectionNotify(req, req.Property)
				}
			})
			reader := d.Connect()
			defer reader.Close()

			data, err := xsel.Acquire(ctx, reader, xsel.AtomNamePrimary, xsel.AtomNameUTF8)
			require.NoError(t, err)
			assert.Equal(t, tt.value, data)
		})
	}
}

func TestAcquireEmptySelection(t *testing.T) {
	ctx := testContext(t)
	d := xseltest.NewDisplay()
	newOwner(t, d, "PRIMARY", func(o *owner, ev xsel.Event) {
		if req, ok := ev.(xsel.SelectionRequest); ok {
			_ = o.c.ChangeProperty(req.Requestor, req.Property, req.Target, 8, nil)
			_ = o.c.SendSelectionNotify(req, req.Property)
		}
	})
	reader := d.Connect()
	defer reader.Close()

	data, err := xsel.Acquire(ctx, reader, xsel.AtomNamePrimary, xsel.AtomNameUTF8)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestAcquireCancelled(t *testing.T) {
	d := xseltest.NewDisplay()
	// An owner that never answers.
	newOwner(t, d, "PRIMARY", func(*owner, xsel.Event) {})
	reader := d.Connect()
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := xsel.Acquire(ctx, reader, xsel.AtomNamePrimary, xsel.AtomNameUTF8)
	require.Error(t, err)
}
