package ctl

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

// Server answers control frames on a unix domain socket. Control
// handling never takes per-page locks, so a stats poller cannot stall
// fault handling on the data plane.
type Server struct {
	id   uuid.UUID
	ctrl *pagecache.Control
	ln   net.Listener

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Serve starts listening on socketPath. The listener is removed by
// [Server.Close].
func Serve(socketPath string, cache *pagecache.Cache) (*Server, error) {
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ctl: listen %s: %w", socketPath, err)
	}

	s := &Server{
		id:   uuid.New(),
		ctrl: &pagecache.Control{Cache: cache},
		ln:   ln,
	}

	s.wg.Add(1)

	go s.acceptLoop()

	log.Printf("ctl: serving on %s (instance %s)", socketPath, s.id)

	return s, nil
}

// ID returns the server's instance identity, minted per Serve call.
func (s *Server) ID() uuid.UUID {
	return s.id
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops the listener and waits for in-flight connections.
func (s *Server) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	s.mu.Unlock()

	err := s.ln.Close()

	s.wg.Wait()

	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()

			if closed || errors.Is(err, net.ErrClosed) {
				return
			}

			log.Printf("ctl: accept: %v", err)

			continue
		}

		s.wg.Add(1)

		go s.serveConn(conn)
	}
}

// serveConn answers frames until the peer hangs up. A malformed frame
// poisons the connection; subsequent bytes cannot be trusted as frame
// boundaries.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	for {
		op, payload, err := readRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("ctl: read request: %v", err)
			}

			return
		}

		if op == OpHello {
			id := s.id

			if err := writeResponse(conn, StatusOK, id[:]); err != nil {
				return
			}

			continue
		}

		resp, handleErr := s.ctrl.Handle(op, payload)

		status := statusFor(handleErr)
		if handleErr != nil {
			resp = []byte(handleErr.Error())
		}

		if err := writeResponse(conn, status, resp); err != nil {
			return
		}
	}
}
