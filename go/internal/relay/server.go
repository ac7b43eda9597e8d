package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TCPServer accepts raw TCP clients and hands each to the connection handler
type TCPServer struct {
	address   string
	handler   *ConnectionHandler
	transport TransportConfig

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

// NewTCPServer creates a server that will listen on address
func NewTCPServer(address string, handler *ConnectionHandler, transport TransportConfig) *TCPServer {
	return &TCPServer{
		address:   address,
		handler:   handler,
		transport: transport,
	}
}

// Listen binds the listening socket. Serve calls it when it was not called
// beforehand.
func (s *TCPServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, nil before Listen
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for every
// connection to finish.
func (s *TCPServer) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Msg("failed to close TCP listener")
		}
	})
	defer stop()

	log.Info().Str("address", ln.Addr().String()).Msg("relay listening for TCP clients")

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(tempDelay*2, time.Second)
				}
				log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept failed")
				time.Sleep(tempDelay)
				continue
			}
			s.conns.Wait()
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			// Errors are logged by the handler
			_ = s.handler.Serve(ctx, NewTCPTransport(conn, s.transport))
		}()
	}

	s.conns.Wait()
	log.Info().Msg("relay TCP listener stopped")
	return nil
}
