package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	for in, want := range map[string]Selection{
		"primary":   Primary,
		"PRIMARY":   Primary,
		"p":         Primary,
		"clipboard": Clipboard,
		"Clipboard": Clipboard,
		"c":         Clipboard,
	} {
		got, err := ParseSelection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSelection("secondary")
	assert.ErrorContains(t, err, "unknown selection")
}

func TestDestinationsOrder(t *testing.T) {
	assert.Equal(t, []Selection{Primary, Clipboard}, Destinations)
}
