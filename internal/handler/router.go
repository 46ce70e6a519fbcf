// Package handler provides the HTTP JSON API for Hermes.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/auth"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/metrics"
	"github.com/prn-tf/hermes/internal/service"
)

// DatabaseChecker reports store health.
type DatabaseChecker interface {
	Health(ctx context.Context) error
}

// Router wires the handlers into a chi mux.
type Router struct {
	userHandler         *UserHandler
	relationshipHandler *RelationshipHandler
	micropostHandler    *MicropostHandler
	authenticator       auth.Authenticator
	authConfig          auth.Config
	database            DatabaseChecker
	metrics             *metrics.Metrics
	maxBodySize         int64
	logger              zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	UserHandler         *UserHandler
	RelationshipHandler *RelationshipHandler
	MicropostHandler    *MicropostHandler
	Authenticator       auth.Authenticator
	AuthConfig          auth.Config
	Database            DatabaseChecker
	Metrics             *metrics.Metrics

	// MaxBodySize caps request bodies; zero means 1 MiB.
	MaxBodySize int64

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	return &Router{
		userHandler:         config.UserHandler,
		relationshipHandler: config.RelationshipHandler,
		micropostHandler:    config.MicropostHandler,
		authenticator:       config.Authenticator,
		authConfig:          config.AuthConfig,
		database:            config.Database,
		metrics:             config.Metrics,
		maxBodySize:         config.MaxBodySize,
		logger:              config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID(rt.logger))
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(rt.metrics.Middleware)
	r.Use(middleware.RequestSize(rt.maxBodySize))

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(rt.authenticator, rt.authConfig))
		requireActor := auth.RequireActor(rt.authConfig)

		rt.userHandler.RegisterRoutes(r, requireActor)
		rt.relationshipHandler.RegisterRoutes(r, requireActor)
		rt.micropostHandler.RegisterRoutes(r, requireActor)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error:     APIError{Code: "not_found", Message: "no such route"},
			RequestID: RequestIDFromContext(r.Context()),
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{
			Error:     APIError{Code: "method_not_allowed", Message: fmt.Sprintf("%s is not allowed here", r.Method)},
			RequestID: RequestIDFromContext(r.Context()),
		})
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.database.Health(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("database health check failed")
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "ok"})
}

// UserAuthenticator adapts the user registry to auth.Authenticator.
type UserAuthenticator struct {
	users *service.UserService
}

// NewUserAuthenticator creates a new UserAuthenticator.
func NewUserAuthenticator(users *service.UserService) *UserAuthenticator {
	return &UserAuthenticator{users: users}
}

// Authenticate checks the pair against the registry.
func (a *UserAuthenticator) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := a.users.Authenticate(ctx, email, password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return nil, auth.ErrBadCredentials
	}
	return user, err
}

var _ auth.Authenticator = (*UserAuthenticator)(nil)
