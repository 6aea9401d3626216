package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Store is the read and delete surface the server needs over stored invocations.
type Store interface {
	// ListInvocations returns invocation roots, newest first.
	ListInvocations(ctx context.Context, limit int) ([]*record.Record, error)
	GetInvocation(ctx context.Context, id string) (*record.Record, error)
	DeleteInvocation(ctx context.Context, id string) error
}

// Retention reports the retention pruner state.
type Retention interface {
	Stats() scheduler.Stats
}

// Server serves the invocation API and the HTML dashboard.
type Server struct {
	addr      string
	store     Store
	retention Retention
	logger    *slog.Logger
	mux       *http.ServeMux
	startTime time.Time

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
}

// New creates a Server. store and retention may be nil; API calls that need
// the store then answer 503.
func New(addr string, store Store, retention Retention, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:      addr,
		store:     store,
		retention: retention,
		logger:    logger.With(slog.String("component", "server")),
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleGetStats)
	s.mux.HandleFunc("GET /api/invocations", s.handleListInvocations)
	s.mux.HandleFunc("GET /api/invocations/{id}", s.handleGetInvocation)
	s.mux.HandleFunc("DELETE /api/invocations/{id}", s.handleDeleteInvocation)
	s.mux.HandleFunc("GET /api/invocations/{id}/tests", s.handleGetTests)
	s.mux.HandleFunc("GET /api/invocations/{id}/query", s.handleQuery)

	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("GET /invocations/{id}", s.handleInvocationDetail)
}

// Handler returns the routed handler wrapped with recovery and request logging.
func (s *Server) Handler() http.Handler {
	return s.withLogging(s.withRecovery(s.mux))
}

// Addr returns the bound address once Start is listening, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpSrv != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.httpSrv = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("serving dashboard", slog.String("addr", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", slog.String("reason", context.Cause(ctx).Error()))
		return s.Stop(context.Background())
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

// Stop shuts the server down, waiting up to ten seconds for in-flight
// requests. Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("handler panicked",
					slog.String("path", r.URL.Path),
					slog.Any("panic", v))
				s.writeError(w, http.StatusInternalServerError, "internal error", fmt.Errorf("%v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Uptime reports how long the server has existed, to the second.
func (s *Server) Uptime() string {
	return time.Since(s.startTime).Truncate(time.Second).String()
}
