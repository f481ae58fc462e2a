package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/oauth2"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/dispatch"
	"github.com/miguel-bm/repobot/internal/github"
	"github.com/miguel-bm/repobot/internal/telegram"
)

// AccountAPI is the part of the repository API used when linking an account.
type AccountAPI interface {
	GetLogin(ctx context.Context, token string) (string, error)
	ListOwnedRepositories(ctx context.Context, token string) ([]github.Repo, error)
}

type Options struct {
	Ingestor *dispatch.Ingestor
	Sender   telegram.Sender
	GitHub   AccountAPI
	OAuth    *oauth2.Config
	// StateSecret signs the account-linking state parameter.
	StateSecret []byte
	// WebhookSecret, when set, must match the secret token header on every
	// webhook delivery.
	WebhookSecret  string
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Server struct {
	db             *db.DB
	router         chi.Router
	ingestor       *dispatch.Ingestor
	sender         telegram.Sender
	github         AccountAPI
	oauth          *oauth2.Config
	states         *stateSigner
	webhookSecret  string
	allowedOrigins []string
	linkLimiter    *failureLimiter
	logger         *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

func NewServer(database *db.DB, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		db:             database,
		ingestor:       opts.Ingestor,
		sender:         opts.Sender,
		github:         opts.GitHub,
		oauth:          opts.OAuth,
		states:         newStateSigner(opts.StateSecret),
		webhookSecret:  opts.WebhookSecret,
		allowedOrigins: opts.AllowedOrigins,
		linkLimiter:    newFailureLimiter(5, time.Minute),
		logger:         logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)

	// Update delivery from the chat platform (auth via secret token header)
	r.Post("/"+webhookPath, s.handleTelegramWebhook)

	// Account linking, opened from the chat client's browser
	r.Route("/api/auth/github", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/login", s.handleGitHubLogin)
		r.Get("/callback", s.handleGitHubCallback)
	})

	s.router = r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Response helpers

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writePage answers a browser request with a short plain-text message.
func writePage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message + "\n"))
}
