package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/metrics"
)

// ChargeCreator creates and reads charges.
type ChargeCreator interface {
	CreateCharge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error)
	ChargeStatus(ctx context.Context, txid string) (domain.ChargeResult, error)
}

// Diagnoser runs credential diagnostics.
type Diagnoser interface {
	Run(ctx context.Context) domain.DiagnosticReport
	AccountFromClient(ctx context.Context) domain.AccountCheck
	Snapshot(ctx context.Context) (map[string]any, error)
}

// DefaultRequestTimeout bounds one request. It stays under the default
// write timeout so the 504 reaches the client.
const DefaultRequestTimeout = 30 * time.Second

// Timeouts configures the underlying http.Server.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Server wraps chi.Router with the Pix routes and base middlewares.
type Server struct {
	Router chi.Router

	log        zerolog.Logger
	creds      domain.Credentials
	charges    ChargeCreator
	diag       Diagnoser
	idem       domain.IdempotencyStore
	adminToken string

	requestTimeout time.Duration
	creates        singleflight.Group

	mu     sync.Mutex
	srv    *http.Server
	closed bool
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithIdempotency enables Idempotency-Key replay on POST /pix/create.
func WithIdempotency(store domain.IdempotencyStore) Option {
	return func(s *Server) {
		s.idem = store
	}
}

// WithAdminToken guards the diagnostic routes with X-Admin-Token.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

// WithRequestTimeout sets the per-request deadline. Keep it below the
// server's write timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer creates the HTTP server and registers every route.
func NewServer(creds domain.Credentials, charges ChargeCreator, diag Diagnoser, opts ...Option) *Server {
	s := &Server{
		log:     zerolog.Nop(),
		creds:   creds,
		charges: charges,
		diag:    diag,

		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(metrics.HTTPMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/pix", func(pix chi.Router) {
		pix.Get("/openapi.yaml", s.handleOpenAPI)
		pix.Get("/form", s.handleForm)
		pix.Post("/create", s.handleCreate)
		pix.Get("/status/{chargeId}", s.handleStatus)

		pix.Group(func(admin chi.Router) {
			admin.Use(AdminAuthMiddleware(s.adminToken))
			admin.Get("/diagnostic", s.handleDiagnostic)
			admin.Get("/tokens", s.handleTokens)
		})
	})

	s.Router = r
	return s
}

// Start runs http.Server until Shutdown is called.
func (s *Server) Start(addr string, timeouts Timeouts) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  timeouts.Read,
		WriteTimeout: timeouts.Write,
		IdleTimeout:  timeouts.Idle,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.srv = srv
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("http: server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", RequestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http: request")
	})
}
