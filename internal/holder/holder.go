// Package holder runs the process that owns one selection on behalf of the
// relay, and spawns such processes.
//
// A holder serves a fixed payload until another client takes the selection
// over and every incremental transfer has finished, until its expiry fires,
// or until it receives SIGINT or SIGTERM.
package holder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"go.klb.dev/exclip/internal/ipc"
	"go.klb.dev/exclip/internal/message"
	"go.klb.dev/exclip/internal/xsel"
)

// Config describes one holder.
type Config struct {
	// Display is the X display to connect to; empty means $DISPLAY.
	Display string
	// Selection is the selection to own, e.g. "PRIMARY".
	Selection string
	// Data is the payload served to requestors.
	Data []byte
	// Expiry bounds the holder's lifetime. Zero means no expiry.
	Expiry time.Duration
}

// Run connects to the display and serves cfg until the holder is no longer
// needed. Expiry and termination signals are normal ends and return nil.
func Run(ctx context.Context, cfg Config) error {
	// Closing the launching terminal must not drop the selection.
	if len(ignoreSignals) > 0 {
		signal.Ignore(ignoreSignals...)
	}
	ctx, stop := signal.NotifyContext(ctx, stopSignals...)
	defer stop()

	conn, err := xsel.Dial(cfg.Display)
	if err != nil {
		return err
	}
	defer conn.Close()

	return Serve(ctx, conn, cfg)
}

// Serve owns cfg.Selection on conn and answers requests for it. The status
// socket is opened best effort.
func Serve(ctx context.Context, conn xsel.Conn, cfg Config) error {
	srv, err := xsel.NewServer(conn, xsel.Config{Selection: cfg.Selection, Data: cfg.Data})
	if err != nil {
		return err
	}

	started := time.Now()
	info := message.HolderInfo{
		PID:       os.Getpid(),
		Selection: cfg.Selection,
		Display:   cfg.Display,
		Size:      len(cfg.Data),
		StartedAt: started,
	}

	serveCtx := ctx
	if cfg.Expiry > 0 {
		var cancel context.CancelFunc
		serveCtx, cancel = context.WithTimeout(ctx, cfg.Expiry)
		defer cancel()
		expires := started.Add(cfg.Expiry)
		info.ExpiresAt = &expires
	}

	if ln, err := ipc.Listen(cfg.Selection, info.PID); err != nil {
		slog.Warn("status socket unavailable", "selection", cfg.Selection, "err", err)
	} else {
		st := newStatusServer(ln, func() message.HolderInfo {
			cur := info
			s := srv.Status()
			cur.Cleared, cur.InFlight, cur.Served = s.Cleared, s.InFlight, s.Served
			return cur
		})
		go st.serve()
		defer st.close()
	}

	slog.Info("holding selection",
		"selection", cfg.Selection,
		"size", len(cfg.Data),
		"expiry", cfg.Expiry,
	)
	err = srv.Serve(serveCtx)
	switch {
	case err == nil:
		slog.Info("selection taken over", "selection", cfg.Selection, "served", srv.Status().Served)
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		slog.Info("selection expired", "selection", cfg.Selection, "in_flight", srv.Status().InFlight)
		return nil
	case ctx.Err() != nil:
		slog.Info("holder stopped", "selection", cfg.Selection, "reason", context.Cause(ctx))
		return nil
	default:
		return fmt.Errorf("serve %s: %w", cfg.Selection, err)
	}
}
