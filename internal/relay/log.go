package relay

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"go.klb.dev/exclip/internal/clip"
)

const previewLen = 120

// logText logs a relay step at INFO (selection, size) and DEBUG (text
// preview up to previewLen bytes, cut at a rune boundary).
func logText(event string, sel clip.Selection, data []byte) {
	slog.Info(event, "selection", sel, "size", len(data))

	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	slog.Debug(event+" preview", "selection", sel, "preview", preview(data))
}

func preview(data []byte) string {
	if len(data) <= previewLen {
		return string(data)
	}
	n := previewLen
	for n > 0 && !utf8.RuneStart(data[n]) {
		n--
	}
	return string(data[:n]) + "…"
}
