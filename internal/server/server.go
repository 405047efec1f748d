package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bsdavidson/oink/internal/api"
	"github.com/bsdavidson/oink/internal/discovery"
	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/protocol"
	"github.com/bsdavidson/oink/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host      string
	Port      int
	Advertise bool   // Announce the bridge over mDNS
	Instance  string // mDNS instance name (defaults to the hostname)
}

// Device is the receiver connection the bridge serves. *device.Device
// satisfies it.
type Device interface {
	api.Device
	Connect(ctx context.Context) error
	Connected() bool
	Subscribe(fn func(protocol.Packet)) (unsubscribe func())
	Close() error
	String() string
}

// Server is the oink HTTP bridge
type Server struct {
	config     *Config
	device     Device
	httpServer *http.Server
	listener   net.Listener
	announce   *discovery.Announcement

	mu      sync.Mutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// New creates a new Server instance
func New(config *Config, dev Device) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config is required")
	}
	if dev == nil {
		return nil, errors.New("device is required")
	}

	s := &Server{
		config:  config,
		device:  dev,
		clients: make(map[string]*client),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the bridge routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/", api.NewDeviceHandler(s.device, nil))
	return mux
}

// Start connects to the receiver, serves HTTP and blocks until SIGINT,
// SIGTERM or a serve error.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	logging.Info("Starting oink bridge",
		zap.String("addr", addr),
		zap.String("receiver", s.device.String()),
		zap.String("version", version.Version),
	)

	if err := s.device.Connect(context.Background()); err != nil {
		return fmt.Errorf("failed to connect to receiver %s: %w", s.device, err)
	}
	logging.LogConnection(s.device.String(), "receiver_connected")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = s.device.Close()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.config.Advertise {
		s.startAnnouncement(listener)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Serve accepts HTTP connections on l until Shutdown
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	logging.Info("Server listening for connections", zap.String("addr", l.Addr().String()))

	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) startAnnouncement(l net.Listener) {
	instance := s.config.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	if instance == "" {
		instance = "oink"
	}

	port := l.Addr().(*net.TCPAddr).Port
	a, err := discovery.Announce(instance, port, s.device.String(), "version="+version.Version)
	if err != nil {
		// The bridge still works without the announcement
		logging.Warn("mDNS announcement failed", zap.Error(err))
		return
	}
	s.announce = a
	logging.Info("Announced bridge over mDNS",
		zap.String("instance", instance),
		zap.String("service", discovery.BridgeServiceType),
		zap.Int("port", port),
	)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.announce.Shutdown()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = s.httpServer.Close()
	}

	// Hijacked websocket connections are not tracked by http.Server
	s.mu.Lock()
	for id, c := range s.clients {
		logging.Info("Closing event stream", zap.String("client_id", id))
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, event streams still open")
	}

	if closeErr := s.device.Close(); closeErr != nil {
		logging.Error("Error closing receiver connection", zap.Error(closeErr))
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of open event streams
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Health is the /healthz response body
type Health struct {
	Connected bool   `json:"connected"`
	Receiver  string `json:"receiver"`
	Version   string `json:"version"`
	Clients   int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := Health{
		Connected: s.device.Connected(),
		Receiver:  s.device.String(),
		Version:   version.Version,
		Clients:   s.GetActiveConnections(),
	}

	status := http.StatusOK
	if !h.Connected {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(h)
}
