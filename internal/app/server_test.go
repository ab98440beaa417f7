package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/spacechat/internal/config"
	"github.com/markdave123-py/spacechat/internal/core/chat_engine"
	db "github.com/markdave123-py/spacechat/internal/core/database"
	"github.com/markdave123-py/spacechat/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/spacechat/internal/core/object-client"
	"github.com/markdave123-py/spacechat/internal/models"
	"github.com/markdave123-py/spacechat/internal/services"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	store := db.NewMemoryClient()
	require.NoError(t, store.CreateSpace(t.Context(), &models.Space{ID: "s1", OwnerID: "o1", Name: "Acme"}))
	require.NoError(t, store.CreateShareLink(t.Context(), &models.ShareLink{ID: "l1", SpaceID: "s1", Token: "tok"}))

	ing := ingestion_engine.NewDocumentIngestor(store, nil, nil, nil, nil)
	cfg := &config.Config{JWTSecret: "secret", CORSOrigins: []string{"http://localhost:5173"}}
	return NewRouter(cfg, Handlers{
		Spaces:    services.NewSpaceService(store),
		Documents: services.NewDocumentService(store, objectclient.NewMemoryClient(), "bucket", ing, nil),
		Links:     services.NewLinkService(store),
		Validator: chat_engine.NewLinkValidator(store),
		Responder: chat_engine.NewResponder(store, chat_engine.ResponderConfig{}),
	})
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_OwnerRoutesNeedToken(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/spaces", strings.NewReader(`{"name":"x"}`))
	testRouter(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_PublicChatIsOpen(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/public/chat", strings.NewReader(`{"action":"validate","token":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	testRouter(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"space":{"name":"Acme","description":""}}`, rec.Body.String())
}

func TestRouter_CORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/public/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	testRouter(t).ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
