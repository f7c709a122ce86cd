package server

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"securebank/internal/config"
	"securebank/internal/repository"
	"securebank/internal/service"
	"securebank/internal/session"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// Server accepts banking protocol connections and runs one session per
// connection. A small HTTP listener exposes /health for operations.
type Server struct {
	db           *sql.DB
	ledger       *service.LedgerService
	logger       *slog.Logger
	listener     net.Listener
	healthServer *http.Server
	healthPort   string
	port         string

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer wires the database, ledger service and health router.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Successfully connected to database")

	store := repository.NewStore(db, logger)
	ledger := service.NewLedgerService(store, logger)

	s := &Server{
		db:     db,
		ledger: ledger,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}

	if cfg.HealthPort != "" {
		router := mux.NewRouter()
		router.HandleFunc("/health", s.healthHandler).Methods("GET")
		s.healthPort = cfg.HealthPort
		s.healthServer = &http.Server{
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}

	return s, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Start listens on the given TCP port ("0" picks a free one) and begins
// accepting connections in the background. It returns the bound port.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}
	s.listener = listener

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.logger.Info("Starting banking server", "port", s.port)

	go s.acceptLoop()

	if s.healthServer != nil {
		healthListener, err := net.Listen("tcp", ":"+s.healthPort)
		if err != nil {
			listener.Close()
			return "", err
		}
		s.healthPort = strconv.Itoa(healthListener.Addr().(*net.TCPAddr).Port)
		go func() {
			if err := s.healthServer.Serve(healthListener); err != nil && err != http.ErrServerClosed {
				s.logger.Error("Health endpoint failed", "error", err)
			}
		}()
	}

	return s.port, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs one session loop: read a line, handle it, write the
// reply. An I/O failure is fatal to this session only.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.logger.Info("Client disconnected", "remote_addr", conn.RemoteAddr().String())
	}()

	s.logger.Info("Client connected", "remote_addr", conn.RemoteAddr().String())

	sess := session.NewSession(s.ledger, s.logger)
	scanner := bufio.NewScanner(conn)

	for scanner.Scan() {
		reply, closed := sess.Handle(scanner.Text())
		if reply != "" {
			if _, err := io.WriteString(conn, reply+"\n"); err != nil {
				s.logger.Warn("Failed to write reply", "remote_addr", conn.RemoteAddr().String(), "error", err)
				return
			}
		}
		if closed {
			return
		}
	}
}

// Stop closes the listener, waits for active sessions up to the context
// deadline, then force-closes whatever is left along with the health
// endpoint and the database pool.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(ctx); err != nil && err != context.DeadlineExceeded {
			s.logger.Warn("Health endpoint shutdown failed", "error", err)
		}
	}

	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// GetPort returns the port the protocol listener is bound to.
func (s *Server) GetPort() string {
	return s.port
}

// GetHealthPort returns the port the health endpoint is bound to, empty when
// the endpoint is disabled.
func (s *Server) GetHealthPort() string {
	if s.healthServer == nil {
		return ""
	}
	return s.healthPort
}

// StartServer starts the server with the given configuration and returns the
// bound protocol port.
func StartServer(cfg *config.Config) (*Server, string, error) {
	// Tests run with an OS-assigned port and a discard logger.
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}
