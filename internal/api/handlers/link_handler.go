package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/spacechat/internal/api/middlewares"
	"github.com/markdave123-py/spacechat/internal/services"
)

type LinkHandler struct {
	links *services.LinkService
}

func NewLinkHandler(links *services.LinkService) *LinkHandler {
	return &LinkHandler{links: links}
}

type createLinkRequest struct {
	Label string `json:"label"`
}

func (h *LinkHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	var req createLinkRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	link, err := h.links.Create(r.Context(), userID, chi.URLParam(r, "spaceID"), req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *LinkHandler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	h.setRevoked(w, r, true)
}

func (h *LinkHandler) RestoreLink(w http.ResponseWriter, r *http.Request) {
	h.setRevoked(w, r, false)
}

func (h *LinkHandler) setRevoked(w http.ResponseWriter, r *http.Request, revoked bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	update := h.links.Restore
	if revoked {
		update = h.links.Revoke
	}
	link, err := update(r.Context(), userID, chi.URLParam(r, "linkID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}
