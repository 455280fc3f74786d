// Package server exposes the ledger over HTTP.
//
// Mutations are turned into ledger commands and handed to the configured
// applier, which orders them and assigns heights. Reads go straight to the
// local ledger. Callers of mutations are identified by a bearer token.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/witnz/ledgerd/internal/auth"
	"github.com/witnz/ledgerd/internal/consensus"
	"github.com/witnz/ledgerd/internal/ledger"
)

type Options struct {
	Addr     string
	Ledger   *ledger.Ledger
	Applier  consensus.Applier
	Verifier auth.TokenVerifier
	Logger   *zap.Logger

	// RequestsPerSecond throttles the whole API. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

type Server struct {
	ledger   *ledger.Ledger
	applier  consensus.Applier
	verifier auth.TokenVerifier
	logger   *zap.Logger
	limiter  *rate.Limiter
	handler  http.Handler
	http     *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Applier == nil {
		return nil, fmt.Errorf("ledger and applier are required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		ledger:   opts.Ledger,
		applier:  opts.Applier,
		verifier: opts.Verifier,
		logger:   opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	s.handler = s.routes()
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogging(s.logger))
	if s.limiter != nil {
		r.Use(throttle(s.limiter))
	}

	r.Route("/api", func(r chi.Router) {
		// Reads
		r.Get("/info", s.getInfo)
		r.Get("/cluster", s.getCluster)
		r.Get("/pause", s.isPaused)
		r.Get("/admins/count", s.getAdminCount)
		r.Get("/admins/{identity}", s.getAdmin)
		r.Get("/admins/{identity}/permissions", s.hasPermission)
		r.Get("/activity/{identity}", s.getActivity)
		r.Get("/records/{key}", s.getRecord)
		r.Get("/records/{key}/tags/{tag}", s.hasTag)
		r.Get("/operations", s.getOperations)
		r.Get("/operations/total", s.getTotalOperations)
		r.Get("/operations/{id}", s.getOperation)
		r.Get("/snapshots/{id}", s.getSnapshot)
		r.Get("/categories/{category}", s.getCategory)

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			r.Use(authenticate(s.verifier))

			r.Post("/pause/toggle", s.togglePause)
			r.Post("/pause/emergency-stop", s.emergencyStop)
			r.Post("/admins", s.addAdmin)
			r.Put("/admins/{identity}/permissions", s.updateAdminPermissions)
			r.Post("/admins/{identity}/deactivate", s.deactivateAdmin)
			r.Put("/records/{key}", s.storeRecord)
			r.Post("/records/{key}/lock", s.lockRecord)
			r.Post("/batch", s.batchStore)
			r.Post("/snapshots", s.createSnapshot)
			r.Put("/categories/{category}", s.addCategory)
			r.Post("/categories/{category}/deactivate", s.deactivateCategory)
			r.Put("/version", s.updateVersion)
		})
	})

	return r
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
