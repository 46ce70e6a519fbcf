package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/auth"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/service"
)

// MicropostHandler serves microposts and the home feed.
type MicropostHandler struct {
	posts  *service.MicropostService
	feed   *service.FeedService
	logger zerolog.Logger
}

// NewMicropostHandler creates a new MicropostHandler.
func NewMicropostHandler(posts *service.MicropostService, feed *service.FeedService, logger zerolog.Logger) *MicropostHandler {
	return &MicropostHandler{
		posts:  posts,
		feed:   feed,
		logger: logger.With().Str("handler", "micropost").Logger(),
	}
}

// RegisterRoutes mounts the micropost and feed routes.
func (h *MicropostHandler) RegisterRoutes(r chi.Router, requireActor func(http.Handler) http.Handler) {
	r.Get("/users/{id}/microposts", h.ListByUser)

	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Get("/feed", h.Feed)
		r.Post("/microposts", h.Create)
		r.Delete("/microposts/{id}", h.Delete)
	})
}

type createMicropostRequest struct {
	Content string `json:"content"`
}

// micropostPage is a newest-first page; Next is passed back as ?before= for the following page.
type micropostPage struct {
	Items []*domain.Micropost `json:"items"`
	Next  string              `json:"next,omitempty"`
}

// Create handles POST /api/microposts.
func (h *MicropostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMicropostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	post, err := h.posts.Create(r.Context(), auth.Actor(r.Context()).ID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// Delete handles DELETE /api/microposts/{id}. Only the author may delete.
func (h *MicropostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.posts.Delete(r.Context(), auth.Actor(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListByUser handles GET /api/users/{id}/microposts?limit=&before=.
func (h *MicropostHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, before, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.posts.PageByUser(r.Context(), id, service.FeedPageInput{Limit: limit, Before: before})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newMicropostPage(result))
}

// Feed handles GET /api/feed?limit=&before= for the authenticated user.
func (h *MicropostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit, before, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.feed.Page(r.Context(), auth.Actor(r.Context()).ID, service.FeedPageInput{
		Limit:  limit,
		Before: before,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newMicropostPage(result))
}

func newMicropostPage(result *service.FeedPage) micropostPage {
	page := micropostPage{Items: result.Items}
	if result.Next != nil {
		page.Next = result.Next.String()
	}
	if page.Items == nil {
		page.Items = []*domain.Micropost{}
	}
	return page
}

func pageParams(r *http.Request) (int, *domain.FeedCursor, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, nil, err
	}
	before, err := service.ParseCursor(r.URL.Query().Get("before"))
	if err != nil {
		return 0, nil, err
	}
	return limit, before, nil
}
