//go:build !darwin && !windows

package clip

import (
	"context"
	"time"

	"go.klb.dev/exclip/internal/holder"
	"go.klb.dev/exclip/internal/xsel"
)

type x11Backend struct {
	display string
}

// New returns the X11 backend. The display is opened per operation, so
// New itself never fails on a missing display.
func New(opts Options) (Backend, error) {
	return &x11Backend{display: opts.Display}, nil
}

func (b *x11Backend) Name() string { return "X11 selections" }

func (b *x11Backend) Read(ctx context.Context, sel Selection) ([]byte, error) {
	conn, err := xsel.Dial(b.display)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return xsel.Acquire(ctx, conn, string(sel), xsel.AtomNameUTF8)
}

func (b *x11Backend) Hold(sel Selection, data []byte, expiry time.Duration) error {
	return holder.Spawn(holder.Config{
		Display:   b.display,
		Selection: string(sel),
		Data:      data,
		Expiry:    expiry,
	})
}

func (b *x11Backend) Close() {}
