package adapthttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"journal/internal/app"
)

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	auth      *app.AuthService
	guard     *app.AccessGuard
	posts     *app.PostService
	uploads   *app.UploadService
	uploadDir string

	oidcConfig    OIDCConfig
	gatherer      prometheus.Gatherer
	logger        klog.Logger
	clock         clock.PassiveClock
	secureCookies bool
}

// New creates a Server wired to the given application services. uploadDir is
// served read-only under /uploads/ when non-empty.
func New(auth *app.AuthService, guard *app.AccessGuard, posts *app.PostService, uploads *app.UploadService, uploadDir string) *Server {
	return &Server{
		auth:      auth,
		guard:     guard,
		posts:     posts,
		uploads:   uploads,
		uploadDir: uploadDir,
		logger:    klog.Background(),
		clock:     clock.RealClock{},
	}
}

// WithLogger sets the request logger.
func (s *Server) WithLogger(logger klog.Logger) *Server {
	s.logger = logger
	return s
}

// WithClock sets the clock used for Retry-After computation.
func (s *Server) WithClock(clk clock.PassiveClock) *Server {
	s.clock = clk
	return s
}

// WithOIDC enables the SSO endpoints.
func (s *Server) WithOIDC(cfg OIDCConfig) *Server {
	s.oidcConfig = cfg
	return s
}

// WithMetrics exposes g on /metrics.
func (s *Server) WithMetrics(g prometheus.Gatherer) *Server {
	s.gatherer = g
	return s
}

// WithSecureCookies marks session cookies Secure.
func (s *Server) WithSecureCookies(secure bool) *Server {
	s.secureCookies = secure
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.loggingMiddleware)

	r.Route("/api", func(api chi.Router) {
		api.Use(withNoCache)

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
		api.Get("/config", s.handleConfig)

		api.Post("/auth/login", s.handleLogin)
		api.Post("/auth/logout", s.handleLogout)
		api.Get("/auth/session", s.handleSession)
		api.Get("/auth/sso/login", s.handleSSOLogin)
		api.Get("/auth/sso/callback", s.handleSSOCallback)

		api.Get("/posts", s.handleListPosts)
		api.With(s.requireSession).Post("/posts", s.handleCreatePost)
		api.With(s.requireSession).Delete("/posts/{id}", s.handleDeletePost)

		api.Post("/upload", s.handleUpload)
	})

	if s.uploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
