package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/auth"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/service"
)

// UserHandler serves the user registry.
type UserHandler struct {
	users         *service.UserService
	relationships *service.RelationshipService
	logger        zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, relationships *service.RelationshipService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:         users,
		relationships: relationships,
		logger:        logger.With().Str("handler", "user").Logger(),
	}
}

// RegisterRoutes mounts the public and authenticated user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router, requireActor func(http.Handler) http.Handler) {
	r.Post("/users", h.Create)
	r.Get("/users", h.List)
	r.Get("/users/{id}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Patch("/users/{id}", h.Update)
		r.Delete("/users/{id}", h.Destroy)
		r.Get("/session", h.Session)
	})
}

type createUserRequest struct {
	Name                 string  `json:"name"`
	Email                string  `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

type updateUserRequest struct {
	Name                 *string `json:"name"`
	Email                *string `json:"email"`
	Password             *string `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

type userResponse struct {
	User  *domain.User               `json:"user"`
	Stats *service.RelationshipStats `json:"stats,omitempty"`
}

type userListResponse struct {
	Users  []*domain.User `json:"users"`
	Total  int64          `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// Create handles POST /api/users (sign up).
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.users.Create(r.Context(), service.CreateUserInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/users/"+formatID(out.User.ID))
	writeJSON(w, http.StatusCreated, userResponse{User: out.User})
}

// List handles GET /api/users?limit=&offset=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.users.List(r.Context(), service.ListUsersInput{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, err)
		return
	}

	users := result.Items
	if users == nil {
		users = []*domain.User{}
	}
	writeJSON(w, http.StatusOK, userListResponse{
		Users:  users,
		Total:  result.Total,
		Offset: result.Offset,
		Limit:  result.Limit,
	})
}

// Get handles GET /api/users/{id}: the profile plus follow counts.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.relationships.Stats(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user, Stats: stats})
}

// Update handles PATCH /api/users/{id}. Only the user themselves may edit.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !auth.Actor(r.Context()).CanEdit(id) {
		writeError(w, r, domain.ErrAccessDenied)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.users.Update(r.Context(), id, service.UpdateUserInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// Destroy handles DELETE /api/users/{id}. Administrators may delete anyone but themselves.
func (h *UserHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	actor := auth.Actor(r.Context())
	if err := actor.CanDestroy(id); err != nil {
		h.logger.Warn().Int64("actor_id", actor.ID).Int64("target_id", id).Err(err).Msg("user deletion refused")
		writeError(w, r, err)
		return
	}

	if err := h.users.Destroy(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/session by echoing the authenticated user.
func (h *UserHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userResponse{User: auth.Actor(r.Context())})
}
