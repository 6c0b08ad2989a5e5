//go:build !windows

package holder

import (
	"os"
	"syscall"
)

var (
	stopSignals   = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	ignoreSignals = []os.Signal{syscall.SIGHUP}
)

// detached puts the holder in its own session so it survives the
// launching shell and its process group.
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
