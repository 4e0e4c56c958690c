package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"velvetink/internal/domain/model"
	"velvetink/internal/usecase"
)

// UserService is what the HTTP layer needs from the account use case.
type UserService interface {
	Register(ctx context.Context, email, displayName, password string) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

// StoryService is the synchronous story lifecycle surface.
type StoryService interface {
	Submit(ctx context.Context, userID string, params model.StoryParams) (*usecase.SubmitResult, error)
	Status(ctx context.Context, callerID string, isAdmin bool, storyID string) (usecase.StatusView, error)
	Get(ctx context.Context, callerID string, isAdmin bool, storyID string) (*model.Story, error)
	Extend(ctx context.Context, callerID string, isAdmin bool, parentID string) (*model.Story, error)
	Library(ctx context.Context, offset, limit int) ([]*model.Story, error)
	ListMine(ctx context.Context, userID string, offset, limit int) ([]*model.Story, error)
}

// CreditService is the read surface for the credits endpoint.
type CreditService interface {
	AvailableCredits(ctx context.Context, userID string) (int, error)
	CanGenerate(ctx context.Context, userID string) (usecase.Availability, error)
}

// RateLimiter throttles expensive endpoints per user.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// submitRateLimit caps generation submissions per user per minute, purely as
// an abuse guard in front of the credit check.
const (
	submitRateLimit  = 10
	submitRateWindow = time.Minute
)

type Server struct {
	users   UserService
	stories StoryService
	credits CreditService
	auth    *AuthManager
	limiter RateLimiter
	webhook http.Handler
	timeout time.Duration
	log     *zerolog.Logger
}

func NewServer(
	users UserService,
	stories StoryService,
	credits CreditService,
	auth *AuthManager,
	limiter RateLimiter,
	webhook http.Handler,
	requestTimeout time.Duration,
	logger *zerolog.Logger,
) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Server{
		users:   users,
		stories: stories,
		credits: credits,
		auth:    auth,
		limiter: limiter,
		webhook: webhook,
		timeout: requestTimeout,
		log:     logger,
	}
}

// Router assembles the full HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Get("/library", s.handleLibrary)
		if s.webhook != nil {
			r.Method(http.MethodPost, "/billing/webhook", s.webhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)
			r.Get("/me", s.handleMe)
			r.Get("/credits", s.handleCredits)
			r.Post("/stories", s.handleSubmit)
			r.Get("/stories", s.handleListMine)
			r.Get("/stories/{id}", s.handleGetStory)
			r.Get("/stories/{id}/status", s.handleStatus)
			r.Post("/stories/{id}/extend", s.handleExtend)
		})
	})
	return r
}
