//go:build !windows

package holder

import (
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalSets(t *testing.T) {
	assert.ElementsMatch(t, []os.Signal{os.Interrupt, syscall.SIGTERM}, stopSignals)
	assert.Equal(t, []os.Signal{syscall.SIGHUP}, ignoreSignals)
	assert.True(t, detached().Setsid)
}

func TestStopSignalCancelsContext(t *testing.T) {
	ctx, stop := signal.NotifyContext(t.Context(), stopSignals...)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("SIGTERM did not cancel the holder context")
	}
}
