package holder

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.klb.dev/exclip/internal/message"
	"go.klb.dev/exclip/internal/wire"
)

const statusIdleTimeout = 10 * time.Second

// statusServer answers STATUS requests on a holder's socket.
type statusServer struct {
	ln   net.Listener
	info func() message.HolderInfo
	wg   sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func newStatusServer(ln net.Listener, info func() message.HolderInfo) *statusServer {
	return &statusServer{ln: ln, info: info, conns: make(map[net.Conn]struct{})}
}

func (s *statusServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *statusServer) handle(conn net.Conn) {
	wc := wire.New(conn)
	defer wc.Close()

	for {
		wc.SetReadDeadline(statusIdleTimeout)
		msg, err := wc.ReadMsg()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("status read", "err", err)
			}
			return
		}

		var reply *message.Message
		switch msg.Type {
		case message.TypeStatus:
			reply = message.StatusResponse(s.info())
		default:
			reply = message.Errorf("unknown message type %q", msg.Type)
		}
		if err := wc.WriteMsg(reply); err != nil {
			return
		}
	}
}

// close stops accepting, which also unlinks the socket file, and drops open
// connections.
func (s *statusServer) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
