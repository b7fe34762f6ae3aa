// Package tcp implements the line server (C9): a TCP listener speaking
// the newline-framed command protocol, one goroutine per connection,
// bounded by a configurable client cap.
package tcp

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lunarcache/lunardb/dispatcher"
)

const readChunkSize = 4096

// atCapacityMessage is written to a connection rejected for exceeding
// max_clients, then the connection is closed.
const atCapacityMessage = "Server at maximum capacity\n"

// Server accepts line-protocol connections and dispatches each command
// to a shared Dispatcher. Accept and per-connection I/O proceed
// independently.
type Server struct {
	addr       string
	maxClients int
	disp       *dispatcher.Dispatcher
	log        *zap.SugaredLogger

	mu       sync.Mutex
	listener net.Listener
	conns    int
	wg       sync.WaitGroup
	stopping bool
}

// New constructs a Server. maxClients <= 0 means unbounded.
func New(addr string, maxClients int, disp *dispatcher.Dispatcher, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{addr: addr, maxClients: maxClients, disp: disp, log: log}
}

// Start binds the listener and begins the accept loop in a background
// goroutine. It returns once the listener is bound, so callers can rely
// on Addr() immediately after.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener's address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// Stop closes the listener and waits for every connection handler to
// return. It does not close open client connections, so it returns only
// after each connected peer has disconnected or sent QUIT.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopping = true
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				return
			}
			s.log.Warnw("tcp: accept error", "error", err)
			continue
		}

		s.mu.Lock()
		if s.maxClients > 0 && s.conns >= s.maxClients {
			s.mu.Unlock()
			_, _ = conn.Write([]byte(atCapacityMessage))
			_ = conn.Close()
			continue
		}
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer func() {
		s.mu.Lock()
		s.conns--
		s.mu.Unlock()
	}()

	reader := bufio.NewReaderSize(conn, readChunkSize)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				return
			}
			return
		}

		cmd := strings.TrimSuffix(line, "\n")
		resp, derr := s.disp.Dispatch(cmd)
		if errors.Is(derr, dispatcher.ErrQuit) {
			return
		}

		if _, err := conn.Write([]byte(resp + "\n")); err != nil {
			return
		}
	}
}
