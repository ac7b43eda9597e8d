package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

// Service wires the relay together: the shared registry and store, the TCP
// listener, and the HTTP server carrying the WebSocket transport and admin API
type Service struct {
	config Config

	registry   *Registry
	store      *StateStore
	dispatcher *Dispatcher
	handler    *ConnectionHandler
	publisher  StatePublisher
	metrics    *prometheus.Registry

	reporter     *StatsReporter
	tcpServer    *TCPServer
	wsHandler    *WebSocketHandler
	adminHandler *AdminHandler
	httpServer   *http.Server

	// lifetime ends when Stop begins
	lifetime context.Context
	cancel   context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

// NewService creates a relay service. It connects to NATS when configured.
func NewService(config Config, clock clockwork.Clock) (*Service, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := NewPrometheusMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var publisher StatePublisher = NoOpPublisher{}
	if config.NATS.URL != "" {
		natsPublisher, err := NewNATSPublisher(config.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to create state publisher: %w", err)
		}
		publisher = natsPublisher
		log.Info().
			Str("nats_url", config.NATS.URL).
			Str("subject_prefix", config.NATS.SubjectPrefix).
			Msg("mirroring player states to NATS")
	}

	handlerConfig := config.Relay.Handler()

	registry := NewRegistry(clock)
	store := NewStateStore(clock)
	dispatcher := NewDispatcher(registry, metrics, publisher)
	handler := NewConnectionHandler(handlerConfig, registry, store, dispatcher, metrics, clock)

	lifetime, cancel := context.WithCancel(context.Background())

	s := &Service{
		lifetime:     lifetime,
		cancel:       cancel,
		config:       config,
		registry:     registry,
		store:        store,
		dispatcher:   dispatcher,
		handler:      handler,
		publisher:    publisher,
		metrics:      reg,
		reporter:     NewStatsReporter(registry, store, clock, config.Log.StatsInterval, log.Logger),
		tcpServer:    NewTCPServer(config.TCPAddress(), handler, handlerConfig.Transport),
		wsHandler:    NewWebSocketHandler(lifetime, handler, handlerConfig.Transport),
		adminHandler: NewAdminHandler(registry, store, dispatcher, reg),
	}

	if config.HTTP.Address != "" {
		s.httpServer = &http.Server{
			Addr:              config.HTTP.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}
	return s, nil
}

// Handler returns the admin and WebSocket routes wrapped with CORS and h2c
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// RegisterRoutes registers the relay HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.adminHandler.RegisterRoutes(mux)
	log.Info().Msg("relay routes registered")
}

// Listen binds the TCP listener so callers can learn the address before Start
func (s *Service) Listen() error {
	return s.tcpServer.Listen()
}

// TCPAddr returns the bound TCP address, nil before Listen
func (s *Service) TCPAddr() net.Addr {
	return s.tcpServer.Addr()
}

// Start runs the relay until ctx is cancelled or a server fails
func (s *Service) Start(ctx context.Context) error {
	log.Info().
		Str("tcp_address", s.config.TCPAddress()).
		Str("http_address", s.config.HTTP.Address).
		Msg("starting relay service")

	if err := s.tcpServer.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.tcpServer.Serve(gctx)
	})

	g.Go(func() error {
		return s.reporter.Run(gctx)
	})

	if s.httpServer != nil {
		g.Go(func() error {
			log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("relay service shutting down")
		return s.Stop()
	})

	return g.Wait()
}

// Stop gracefully shuts down the relay service. Only the first call does work.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		var err error

		if s.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if shutdownErr := s.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
				err = multierr.Append(err, fmt.Errorf("HTTP server shutdown: %w", shutdownErr))
			}
			cancel()
		}

		// Hijacked WebSocket connections are not tracked by the HTTP server
		s.cancel()
		s.registry.CloseAll()

		if closeErr := s.publisher.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("state publisher close: %w", closeErr))
		}

		s.stopErr = err
		log.Info().Msg("relay service stopped")
	})
	return s.stopErr
}
