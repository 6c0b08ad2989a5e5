// Package relay reads a selection, filters it and re-hosts the result as
// every destination selection.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.klb.dev/exclip/internal/clip"
	"go.klb.dev/exclip/internal/transform"
)

// Config describes one relay run.
type Config struct {
	// Source is the selection to read.
	Source clip.Selection
	// Filters is applied to the text before it is re-hosted.
	Filters transform.Options
	// Expiry bounds how long each destination keeps the text. Zero means
	// until another client takes the selection.
	Expiry time.Duration
}

// Run performs the relay. It returns as soon as every destination has been
// handed its own copy of the result; it never waits for the holders. A read
// failure returns before any destination is touched.
func Run(ctx context.Context, backend clip.Backend, cfg Config) error {
	data, err := backend.Read(ctx, cfg.Source)
	if err != nil {
		return err
	}
	logText("selection read", cfg.Source, data)
	out := transform.Apply(data, cfg.Filters)

	for _, dst := range clip.Destinations {
		if err := backend.Hold(dst, bytes.Clone(out), cfg.Expiry); err != nil {
			return fmt.Errorf("hold %s: %w", dst, err)
		}
		logText("selection handed over", dst, out)
	}
	return nil
}
