//go:build darwin || windows

package clip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.design/x/clipboard"
)

// nativeBackend has a single system clipboard; PRIMARY maps onto it.
type nativeBackend struct{}

// New initialises golang.design/x/clipboard.
func New(_ Options) (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("clipboard init: %w", err)
	}
	return nativeBackend{}, nil
}

func (nativeBackend) Name() string { return "system clipboard" }

func (nativeBackend) Read(_ context.Context, _ Selection) ([]byte, error) {
	text := clipboard.Read(clipboard.FmtText)
	if text == nil {
		return nil, ErrEmpty
	}
	return text, nil
}

func (nativeBackend) Hold(sel Selection, data []byte, expiry time.Duration) error {
	if expiry > 0 {
		slog.Warn("clipboard expiry not supported on this platform", "selection", sel, "expiry", expiry)
	}
	clipboard.Write(clipboard.FmtText, data)
	return nil
}

func (nativeBackend) Close() {}
