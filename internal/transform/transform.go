// Package transform implements the text filters applied to a selection
// between reading it and re-hosting it.
package transform

import "bytes"

// cSpace is the C-locale whitespace set.
const cSpace = " \t\n\v\f\r"

// Options selects the filters. The zero value is not the default; use
// Defaults.
type Options struct {
	// Verbatim disables the default filters: tab collapsing, newline
	// removal and outer whitespace stripping.
	Verbatim bool
	// TabWidth, when >= 0, replaces every tab with that many spaces even
	// in verbatim mode. A negative value selects the default (one space
	// unless Verbatim).
	TabWidth int
	// SlashesToDots replaces every '/' with '.'.
	SlashesToDots bool
	// DropPrefix removes up to that many leading bytes.
	DropPrefix int
}

// Defaults returns the options used when no flag is given.
func Defaults() Options {
	return Options{TabWidth: -1}
}

// Apply runs the enabled filters over data in a fixed order and returns a
// new slice. data is not modified.
func Apply(data []byte, opts Options) []byte {
	out := bytes.Clone(data)

	switch {
	case opts.TabWidth >= 0:
		out = bytes.ReplaceAll(out, []byte{'\t'}, bytes.Repeat([]byte{' '}, opts.TabWidth))
	case !opts.Verbatim:
		out = bytes.ReplaceAll(out, []byte{'\t'}, []byte{' '})
	}

	if !opts.Verbatim {
		out = bytes.ReplaceAll(out, []byte{'\n'}, nil)
		out = bytes.Trim(out, cSpace)
	}

	if opts.SlashesToDots {
		out = bytes.ReplaceAll(out, []byte{'/'}, []byte{'.'})
	}

	if opts.DropPrefix > 0 {
		out = out[min(opts.DropPrefix, len(out)):]
	}
	if out == nil {
		// bytes.ReplaceAll and bytes.Trim return nil for empty input.
		out = []byte{}
	}
	return out
}
