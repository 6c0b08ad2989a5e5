// Package ipc locates and opens the Unix status sockets of running holder
// processes. Every holder listens on its own socket; `exclip status` finds
// them by listing the runtime directory.
package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.klb.dev/exclip/internal/message"
	"go.klb.dev/exclip/internal/wire"
)

const socketExt = ".sock"

// Dir returns the directory holding the status sockets.
//
//   - $EXCLIP_RUNTIME_DIR when set
//   - $XDG_RUNTIME_DIR/exclip
//   - $TMPDIR/exclip-<uid>
func Dir() string {
	if d := os.Getenv("EXCLIP_RUNTIME_DIR"); d != "" {
		return d
	}
	if d := os.Getenv("XDG_RUNTIME_DIR"); d != "" {
		return filepath.Join(d, "exclip")
	}
	return filepath.Join(os.TempDir(), "exclip-"+strconv.Itoa(os.Getuid()))
}

// SocketPath returns the socket path of the holder pid serving selection.
func SocketPath(selection string, pid int) string {
	return filepath.Join(Dir(), fmt.Sprintf("%s-%d%s", selection, pid, socketExt))
}

// ParseSocketName extracts the selection and pid from a socket path made by
// SocketPath.
func ParseSocketName(path string) (selection string, pid int, ok bool) {
	name, found := strings.CutSuffix(filepath.Base(path), socketExt)
	if !found {
		return "", 0, false
	}
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return "", 0, false
	}
	pid, err := strconv.Atoi(name[i+1:])
	if err != nil || pid <= 0 {
		return "", 0, false
	}
	return name[:i], pid, true
}

// Listen creates the runtime directory if needed and listens on the socket
// for (selection, pid), removing any stale socket file first.
func Listen(selection string, pid int) (net.Listener, error) {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return nil, fmt.Errorf("runtime dir: %w", err)
	}
	path := SocketPath(selection, pid)
	// Remove stale socket from a previous (crashed) run with the same pid.
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// Sockets lists the status sockets in Dir, sorted by name. A missing
// directory yields no sockets.
func Sockets() ([]string, error) {
	entries, err := os.ReadDir(Dir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), socketExt) {
			continue
		}
		out = append(out, filepath.Join(Dir(), e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Query asks the holder listening on path for its status.
func Query(path string, timeout time.Duration) (*message.HolderInfo, error) {
	nc, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, err
	}
	c := wire.New(nc)
	defer c.Close()

	if err := c.WriteMsg(message.Status()); err != nil {
		return nil, fmt.Errorf("send status: %w", err)
	}
	c.SetReadDeadline(timeout)
	reply, err := c.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	switch reply.Type {
	case message.TypeStatusResponse:
		if reply.Holder == nil {
			return nil, errors.New("empty status response")
		}
		return reply.Holder, nil
	case message.TypeError:
		return nil, fmt.Errorf("holder error: %s", reply.Error)
	default:
		return nil, fmt.Errorf("unexpected reply %s", reply.Type)
	}
}
