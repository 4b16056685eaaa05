// Package server exposes the merchant catalog and payment operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"github.com/vitwit/payrail/config"
	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/merchant"
	"github.com/vitwit/payrail/settlement"
	"github.com/vitwit/payrail/types"
)

const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Service is what the HTTP layer needs from a payrail instance.
type Service interface {
	Issue(ctx context.Context, req types.PaymentRequest) *types.IssuedPayment
	Verify(ctx context.Context, req *types.VerificationRequest) *types.VerificationResult
	BatchVerify(ctx context.Context, reqs []*types.VerificationRequest) ([]*types.VerificationResult, error)
	BuildAuthorization(amount decimal.Decimal, payee, resource string, method types.PaymentMethod) (*settlement.Authorization, error)
	Merchant() merchant.Merchant
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsHandler serves h at path, typically promhttp.Handler().
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		if path == "" {
			path = "/metrics"
		}
		s.metricsPath = path
		s.metrics = h
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithIssue enables POST /v1/payments/issue, which spends from the issuer
// key. It is only mounted together with an admin token.
func WithIssue(enabled bool) Option {
	return func(s *Server) {
		s.issue = enabled
	}
}

// WithAuthorize enables POST /v1/payments/authorize, which signs payment
// headers with the server's own buyer key. Only for sandboxes. It is only
// mounted together with an admin token.
func WithAuthorize(enabled bool) Option {
	return func(s *Server) {
		s.authorize = enabled
	}
}

// WithAdminToken sets the bearer token the signing routes require.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

type Server struct {
	svc    Service
	cfg    config.ServerConfig
	logger logger.Logger

	metricsPath    string
	metrics        http.Handler
	requestTimeout time.Duration
	issue          bool
	authorize      bool
	adminToken     string
}

func New(svc Service, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		cfg:            cfg,
		logger:         logger.NoopLogger{},
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Payment"},
		ExposedHeaders:   []string{"X-Payment-Response"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Timeout(s.requestTimeout))

	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.healthCheckHandler)
		r.Get("/payment-methods", s.paymentMethodsHandler)
		r.Post("/pricing-listing", s.pricingListingHandler)
		r.Post("/purchase", s.purchaseHandler)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/verify", s.verifyHandler)
			r.Post("/verify/batch", s.batchVerifyHandler)

			if (s.issue || s.authorize) && s.adminToken == "" {
				s.logger.Warn("signing routes disabled: no admin token configured", nil)
				return
			}
			r.Group(func(r chi.Router) {
				r.Use(s.adminTokenMiddleware)
				if s.issue {
					r.Post("/issue", s.issueHandler)
				}
				if s.authorize {
					r.Post("/authorize", s.authorizeHandler)
				}
			})
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		WriteTimeout: s.requestTimeout + 10*time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down server", map[string]any{"addr": s.cfg.Addr})
		shutdown <- srv.Shutdown(sctx)
	}()

	s.logger.Info("server has started", map[string]any{"addr": s.cfg.Addr})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdown; err != nil {
		return err
	}

	s.logger.Info("server has stopped", map[string]any{"addr": s.cfg.Addr})
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("request", map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
		})
	})
}
