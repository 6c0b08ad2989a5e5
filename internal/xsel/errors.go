package xsel

import (
	"errors"
	"fmt"
)

// ErrTargetUnavailable is wrapped by TargetError.
var ErrTargetUnavailable = errors.New("target format not available")

// ErrNotOwner is returned when the server did not grant selection ownership.
var ErrNotOwner = errors.New("selection ownership not granted")

// TargetError reports that the selection owner could not convert to any of
// the targets tried. Target is the last one attempted.
type TargetError struct {
	Target string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %s not available", e.Target)
}

func (e *TargetError) Unwrap() error { return ErrTargetUnavailable }

// ConnectionError reports a failure to open the X display.
type ConnectionError struct {
	Display string
	Err     error
}

func (e *ConnectionError) Error() string {
	name := e.Display
	if name == "" {
		name = "[default]"
	}
	return fmt.Sprintf("failed to open display: %s: %v", name, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
