package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/auth"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/service"
)

// RelationshipHandler serves the follow graph.
type RelationshipHandler struct {
	relationships *service.RelationshipService
	logger        zerolog.Logger
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(relationships *service.RelationshipService, logger zerolog.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		relationships: relationships,
		logger:        logger.With().Str("handler", "relationship").Logger(),
	}
}

// RegisterRoutes mounts the follow graph routes.
func (h *RelationshipHandler) RegisterRoutes(r chi.Router, requireActor func(http.Handler) http.Handler) {
	r.Get("/users/{id}/following", h.Following)
	r.Get("/users/{id}/followers", h.Followers)

	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Post("/users/{id}/follow", h.Follow)
		r.Delete("/users/{id}/follow", h.Unfollow)
		r.Get("/users/{id}/follow", h.IsFollowing)
	})
}

type followingResponse struct {
	Following bool `json:"following"`
}

type relatedUsersResponse struct {
	Users []*domain.User `json:"users"`
}

// Follow handles POST /api/users/{id}/follow: the actor follows {id}.
func (h *RelationshipHandler) Follow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rel, err := h.relationships.Follow(r.Context(), auth.Actor(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rel)
}

// Unfollow handles DELETE /api/users/{id}/follow.
func (h *RelationshipHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.relationships.Unfollow(r.Context(), auth.Actor(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IsFollowing handles GET /api/users/{id}/follow.
func (h *RelationshipHandler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	following, err := h.relationships.IsFollowing(r.Context(), auth.Actor(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, followingResponse{Following: following})
}

// Following handles GET /api/users/{id}/following.
func (h *RelationshipHandler) Following(w http.ResponseWriter, r *http.Request) {
	h.related(w, r, h.relationships.Following)
}

// Followers handles GET /api/users/{id}/followers.
func (h *RelationshipHandler) Followers(w http.ResponseWriter, r *http.Request) {
	h.related(w, r, h.relationships.Followers)
}

func (h *RelationshipHandler) related(
	w http.ResponseWriter,
	r *http.Request,
	list func(ctx context.Context, userID int64) ([]*domain.User, error),
) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	users, err := list(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}

	writeJSON(w, http.StatusOK, relatedUsersResponse{Users: users})
}
