package tcp

import (
	"net"
	"sync"

	"github.com/wiregate-web/wiregate/gateway/status"
)

// OnConn is called in a dedicated goroutine for every accepted connection and
// owns it from start to finish.
type OnConn func(net.Conn)

type Server struct {
	sock     net.Listener
	onConn   OnConn
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool
}

func NewServer(sock net.Listener, onConn OnConn) *Server {
	return &Server{
		sock:   sock,
		onConn: onConn,
		conns:  map[net.Conn]struct{}{},
	}
}

func (s *Server) Start() error {
	wg := new(sync.WaitGroup)

	for {
		conn, err := s.sock.Accept()
		if err != nil {
			wg.Wait()

			s.mu.Lock()
			wasShutdown := s.shutdown
			s.mu.Unlock()

			if wasShutdown {
				return status.ErrShutdown
			}

			return err
		}

		s.track(conn)
		wg.Add(1)
		go s.connHandler(wg, conn)
	}
}

func (s *Server) stopListener() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	return s.sock.Close()
}

// Stop shuts the listener and ALL the connections down.
func (s *Server) Stop() error {
	if err := s.stopListener(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		_ = conn.Close()
	}

	return nil
}

// Pause stops the listener, leaving all the connections free to end their lives
// peacefully.
func (s *Server) Pause() error {
	return s.stopListener()
}

func (s *Server) connHandler(wg *sync.WaitGroup, conn net.Conn) {
	s.onConn(conn)
	wg.Done()
	s.untrack(conn)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// PauseAll pauses the given servers.
func PauseAll(servers []*Server) {
	for _, server := range servers {
		_ = server.Pause()
	}
}

// StopAll stops the given servers.
func StopAll(servers []*Server) {
	for _, server := range servers {
		_ = server.Stop()
	}
}
