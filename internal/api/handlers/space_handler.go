package handlers

import (
	"net/http"

	middleware "github.com/markdave123-py/spacechat/internal/api/middlewares"
	"github.com/markdave123-py/spacechat/internal/services"
)

type SpaceHandler struct {
	spaces *services.SpaceService
}

func NewSpaceHandler(spaces *services.SpaceService) *SpaceHandler {
	return &SpaceHandler{spaces: spaces}
}

func (h *SpaceHandler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var in services.CreateSpaceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	space, err := h.spaces.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, space)
}
