// Package clip provides the platform clipboard backend the relay reads from
// and hands its result to. Build constraints select the implementation:
//
//	clip_x11.go    X11 selections via internal/xsel, one holder process per selection
//	clip_native.go macOS and Windows via golang.design/x/clipboard
package clip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Selection names one of the X11 selections exclip works with.
type Selection string

const (
	Primary   Selection = "PRIMARY"
	Clipboard Selection = "CLIPBOARD"
)

// Destinations are the selections the relay re-hosts its result as.
var Destinations = []Selection{Primary, Clipboard}

// ErrEmpty is returned by Read when there is nothing to read.
var ErrEmpty = errors.New("clipboard is empty")

// ParseSelection accepts a selection name in any case, or its first letter.
func ParseSelection(s string) (Selection, error) {
	switch strings.ToUpper(s) {
	case "PRIMARY", "P":
		return Primary, nil
	case "CLIPBOARD", "C":
		return Clipboard, nil
	default:
		return "", fmt.Errorf("unknown selection %q (want primary or clipboard)", s)
	}
}

// Options configures New.
type Options struct {
	// Display is the X display; empty means $DISPLAY. Ignored by native
	// backends.
	Display string
}

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current contents of sel as text.
	Read(ctx context.Context, sel Selection) ([]byte, error)

	// Hold makes data the contents of sel. It returns once the data has
	// been handed over; it does not wait for the data to be consumed.
	// A positive expiry bounds how long data stays available.
	Hold(sel Selection, data []byte, expiry time.Duration) error

	// Close releases any resources held by the backend.
	Close()
}
