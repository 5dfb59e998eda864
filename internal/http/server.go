package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fintrack/internal/core"
	"fintrack/internal/dashboard"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

type (
	// TransactionManager is the owner-scoped ledger API the handlers drive.
	TransactionManager interface {
		Create(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error)
		List(ctx context.Context, ownerID string) ([]core.Transaction, error)
		Update(ctx context.Context, ownerID, id string, patch core.TransactionPatch) (updated, previous core.Transaction, err error)
		Delete(ctx context.Context, ownerID, id string) (core.Transaction, error)
	}

	Authenticator interface {
		Register(ctx context.Context, name, email, password string) (services.Session, error)
		Login(ctx context.Context, email, password string) (services.Session, error)
		Refresh(ctx context.Context, token string) (services.Session, error)
		Authenticate(token string) (string, error)
	}

	SummaryProvider interface {
		Summary(ctx context.Context, ownerID string, topN int) (dashboard.Summary, error)
	}

	AttachmentStore interface {
		Save(ctx context.Context, originalName string, r io.Reader) (string, error)
		Delete(ref string) error
		Handler() http.Handler
	}

	LiveFeed interface {
		ServeWS(w http.ResponseWriter, r *http.Request, ownerID string)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the collaborators behind the routes. Live and Recurrence are
// optional; their routes answer 404 when unset.
type Deps struct {
	Transactions TransactionManager
	Auth         Authenticator
	Dashboard    SummaryProvider
	Attachments  AttachmentStore
	Store        Pinger
	Live         LiveFeed
	Recurrence   services.PassRunner
	Logger       *applog.Logger
}

type Options struct {
	// CORSOrigin is "*" or a comma-separated list of origins.
	CORSOrigin         string
	Production         bool
	RateLimitPerMinute int
	// MaxBodyBytes bounds request bodies, uploads included.
	MaxBodyBytes int64
	// RecurrenceToken guards POST /internal/recurrence/run. Empty disables
	// the route.
	RecurrenceToken string
	DefaultTopN     int
	// TrustedProxies extends the proxy networks whose X-Forwarded-For and
	// X-Real-IP headers are believed.
	TrustedProxies []string
}

type Server struct {
	*http.Server
	deps     Deps
	opts     Options
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time
	now      func() time.Time

	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.ConfigFor("", "info", applog.ComponentHTTP))
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 11 << 20
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 5
	}

	s := &Server{
		deps:     deps,
		opts:     opts,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		started:  time.Now(),
		now:      time.Now,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			deps.Logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(cors.Handler(corsOptions(s.opts.CORSOrigin)))
	r.Use(applog.Middleware(s.deps.Logger))
	r.Use(applog.RequestIDMiddleware(trace.RequestIDFromRequest))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError().Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Post("/internal/recurrence/run", s.handleRunRecurrence)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(security.NoStore)
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
				TooManyRequestsError().Write(w)
			}))
			r.Use(s.limitBody)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Handle("/transactions/files/*", http.StripPrefix(filesPrefix, s.deps.Attachments.Handler()))
		r.Get("/live", s.handleLive)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.limitBody)
			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Get("/dashboard", s.handleDashboard)
		})
	})
	return r
}

func corsOptions(origin string) cors.Options {
	origins := []string{"*"}
	if o := strings.TrimSpace(origin); o != "" && o != "*" {
		origins = origins[:0]
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID, "Retry-After"},
		MaxAge:         300,
	}
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the rate limiter and drains the HTTP server. It is safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
