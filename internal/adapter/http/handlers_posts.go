package adapthttp

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"journal/internal/app"
	"journal/internal/domain"
)

// handleListPosts never fails the page: a store error renders an empty list.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context())
	if err != nil {
		s.logger.Error(err, "list posts")
		posts = []domain.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string         `json:"content"`
		Media   []domain.Media `json:"media"`
	}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := s.posts.Create(r.Context(), req.Content, req.Media)
	if errors.Is(err, app.ErrContentRequired) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.logger.Error(err, "create post")
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	if u := userFromContext(r.Context()); u != nil {
		s.logger.V(1).Info("post created", "id", p.ID, "userID", u.ID)
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	err := s.posts.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, app.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.logger.Error(err, "delete post")
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
