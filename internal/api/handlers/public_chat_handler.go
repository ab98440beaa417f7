package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core/chat_engine"
	"github.com/markdave123-py/spacechat/internal/models"
)

const (
	actionValidate = "validate"
	actionChat     = "chat"
)

// publicRequest is the body of POST /api/public/chat as it arrives. It is
// decoded once and turned into exactly one of validateRequest or chatRequest.
type publicRequest struct {
	Action  string            `json:"action"`
	Token   string            `json:"token"`
	Message string            `json:"message,omitempty"`
	History []models.ChatTurn `json:"history,omitempty"`
}

type validateRequest struct {
	Token string
}

type chatRequest struct {
	Token   string
	Message string
	History []models.ChatTurn
}

// variant returns the typed request for the action.
func (p publicRequest) variant() (any, error) {
	switch p.Action {
	case actionValidate:
		return validateRequest{Token: p.Token}, nil
	case actionChat:
		return chatRequest{Token: p.Token, Message: p.Message, History: p.History}, nil
	default:
		return nil, apperr.NewInvalidRequest("action must be validate or chat")
	}
}

type publicSpace struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type validateResponse struct {
	Valid   bool         `json:"valid"`
	Space   *publicSpace `json:"space,omitempty"`
	Message string       `json:"message,omitempty"`
}

type PublicChatHandler struct {
	validator *chat_engine.LinkValidator
	responder *chat_engine.Responder
}

func NewPublicChatHandler(validator *chat_engine.LinkValidator, responder *chat_engine.Responder) *PublicChatHandler {
	return &PublicChatHandler{validator: validator, responder: responder}
}

// Handle serves both the token check and the streamed chat for anonymous
// visitors of a share link.
func (h *PublicChatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req publicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := req.variant()
	if err != nil {
		writeError(w, err)
		return
	}
	switch v := v.(type) {
	case validateRequest:
		h.validate(w, r, v)
	case chatRequest:
		h.chat(w, r, v)
	}
}

func (h *PublicChatHandler) validate(w http.ResponseWriter, r *http.Request, req validateRequest) {
	v, err := h.validator.Validate(r.Context(), req.Token, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if !v.Valid {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Message: v.Message})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Valid: true,
		Space: &publicSpace{Name: v.Space.Name, Description: v.Space.Description},
	})
}

func (h *PublicChatHandler) chat(w http.ResponseWriter, r *http.Request, req chatRequest) {
	ctx := r.Context()
	v, err := h.validator.Validate(ctx, req.Token, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if !v.Valid {
		writeError(w, apperr.NewLinkInvalid())
		return
	}

	answer, err := h.responder.Respond(ctx, v.Space, req.Message, req.History)
	if err != nil {
		writeError(w, err)
		return
	}
	defer answer.Close()

	// Hold the headers back until the first fragment so an upstream failure
	// that arrives before any text still gets a plain JSON error.
	first, ok := next(ctx, answer.Fragments)
	if !ok {
		return
	}
	if first.Err != nil && first.Content == "" {
		writeError(w, first.Err)
		return
	}

	sse, err := chat_engine.NewSSEWriter(w)
	if err != nil {
		writeError(w, apperr.NewInternal(err))
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := sse.Relay(ctx, first, answer.Fragments); err != nil {
		log.Printf("PublicChatHandler: stream for space %s ended: %v", v.Space.ID, err)
	}
}

// next waits for the first fragment. A channel closed without any fragment
// reads as an empty finished answer; a gone client reads as not ok.
func next(ctx context.Context, fragments <-chan chat_engine.Fragment) (chat_engine.Fragment, bool) {
	select {
	case <-ctx.Done():
		return chat_engine.Fragment{}, false
	case f, ok := <-fragments:
		if !ok {
			return chat_engine.Fragment{Done: true}, true
		}
		return f, true
	}
}
