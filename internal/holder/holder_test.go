package holder

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/exclip/internal/ipc"
	"go.klb.dev/exclip/internal/message"
	"go.klb.dev/exclip/internal/wire"
	"go.klb.dev/exclip/internal/xsel"
	"go.klb.dev/exclip/internal/xsel/xseltest"
)

func startHolder(t *testing.T, ctx context.Context, d *xseltest.Display, cfg Config) <-chan error {
	t.Helper()
	t.Setenv("EXCLIP_RUNTIME_DIR", t.TempDir())
	conn := d.Connect()
	t.Cleanup(func() { _ = conn.Close() })

	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, conn, cfg) }()

	require.Eventually(t, func() bool {
		return d.Owner(cfg.Selection) == conn.Window()
	}, time.Second, time.Millisecond)
	return errCh
}

func waitServe(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("holder did not stop")
		return nil
	}
}

func TestServeUntilTakenOver(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d := xseltest.NewDisplay()
	errCh := startHolder(t, ctx, d, Config{Selection: xsel.AtomNameClipboard, Data: []byte("held")})

	reader := d.Connect()
	defer reader.Close()
	data, err := xsel.Acquire(ctx, reader, xsel.AtomNameClipboard, xsel.AtomNameUTF8)
	require.NoError(t, err)
	assert.Equal(t, "held", string(data))

	path := ipc.SocketPath(xsel.AtomNameClipboard, os.Getpid())
	require.Eventually(t, func() bool {
		info, err := ipc.Query(path, time.Second)
		return err == nil && info.Served == 1
	}, time.Second, 10*time.Millisecond)

	info, err := ipc.Query(path, time.Second)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, xsel.AtomNameClipboard, info.Selection)
	assert.Equal(t, 4, info.Size)
	assert.Nil(t, info.ExpiresAt)
	assert.False(t, info.Cleared)

	thief := d.Connect()
	defer thief.Close()
	sel, err := thief.Atom(xsel.AtomNameClipboard)
	require.NoError(t, err)
	require.NoError(t, thief.SetSelectionOwner(sel))

	require.NoError(t, waitServe(t, errCh))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServeExpires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d := xseltest.NewDisplay()
	errCh := startHolder(t, ctx, d, Config{
		Selection: xsel.AtomNamePrimary,
		Data:      []byte("short-lived"),
		Expiry:    200 * time.Millisecond,
	})

	info, err := ipc.Query(ipc.SocketPath(xsel.AtomNamePrimary, os.Getpid()), time.Second)
	require.NoError(t, err)
	require.NotNil(t, info.ExpiresAt)
	assert.WithinDuration(t, info.StartedAt.Add(200*time.Millisecond), *info.ExpiresAt, time.Millisecond)

	require.NoError(t, waitServe(t, errCh))
}

func TestServeStoppedBySignalContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := xseltest.NewDisplay()
	errCh := startHolder(t, ctx, d, Config{Selection: xsel.AtomNamePrimary, Data: []byte("x")})

	cancel()
	require.NoError(t, waitServe(t, errCh))
}

func TestServeWithoutStatusSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := xseltest.NewDisplay()
	// A regular file where the runtime directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	conn := d.Connect()
	defer conn.Close()
	t.Setenv("EXCLIP_RUNTIME_DIR", filepath.Join(blocker, "sub"))

	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, conn, Config{Selection: xsel.AtomNamePrimary, Data: []byte("x")}) }()
	require.Eventually(t, func() bool {
		return d.Owner(xsel.AtomNamePrimary) == conn.Window()
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, waitServe(t, errCh))
}

func TestStatusServerRejectsUnknownType(t *testing.T) {
	ln, err := net.Listen("unix", filepath.Join(t.TempDir(), "s.sock"))
	require.NoError(t, err)
	st := newStatusServer(ln, func() message.HolderInfo { return message.HolderInfo{PID: 1} })
	go st.serve()
	defer st.close()

	nc, err := net.Dial("unix", ln.Addr().String())
	require.NoError(t, err)
	c := wire.New(nc)
	defer c.Close()

	require.NoError(t, c.WriteMsg(&message.Message{Type: "PING"}))
	reply, err := c.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, message.TypeError, reply.Type)

	// The connection stays usable.
	require.NoError(t, c.WriteMsg(message.Status()))
	reply, err = c.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, message.TypeStatusResponse, reply.Type)
	assert.Equal(t, 1, reply.Holder.PID)
}

func TestCommand(t *testing.T) {
	cmd := command("/usr/bin/exclip", Config{
		Display:   ":1",
		Selection: "CLIPBOARD",
		Expiry:    1500 * time.Millisecond,
	})
	assert.Equal(t, []string{"/usr/bin/exclip", "hold", "--selection", "CLIPBOARD", "--timeout", "1.5", "--display", ":1"}, cmd.Args)
	assert.Equal(t, "/", cmd.Dir)
	assert.NotNil(t, cmd.SysProcAttr)

	cmd = command("/usr/bin/exclip", Config{Selection: "PRIMARY"})
	assert.Equal(t, []string{"/usr/bin/exclip", "hold", "--selection", "PRIMARY"}, cmd.Args)
}
