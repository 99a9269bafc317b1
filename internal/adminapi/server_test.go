package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehost/internal/eventbus"
	"tradehost/internal/ordergateway"
	"tradehost/internal/pluginsupervisor"
	"tradehost/internal/userfeed"
)

type fakeSender struct{ id uint64 }

func (f *fakeSender) NextID() uint64 {
	f.id++
	return f.id
}
func (f *fakeSender) Send(id uint64, method string, params map[string]string) {}

func newTestServer(t *testing.T) (*Server, *TokenManager) {
	bus := eventbus.New(64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := userfeed.NewRegistry(ctx, "http://127.0.0.1:1", "ws://127.0.0.1:1", bus, nil, nil)
	gw := ordergateway.New(&fakeSender{}, nil)
	sup := pluginsupervisor.New(bus, reg, gw, nil, nil)
	t.Cleanup(sup.Close)

	cfg := Config{Host: "127.0.0.1", Port: 0, TokenSecret: "test-secret", TokenTTL: time.Hour}
	s := NewServer(cfg, sup, reg, nil, nil)
	return s, s.tokens
}

func TestHealthEndpointIsPublic(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedEndpointRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedEndpointAcceptsValidToken(t *testing.T) {
	s, tokens := newTestServer(t)
	token, err := tokens.Issue("operator1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectCredentialsReturnsHash(t *testing.T) {
	s, tokens := newTestServer(t)
	token, _ := tokens.Issue("operator1")

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"api_key":"key1","secret_key":"secret1"}`)
	req := httptest.NewRequest(http.MethodPost, "/credentials", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "credential_hash")
}

func TestStartInstanceRejectsMissingFields(t *testing.T) {
	s, tokens := newTestServer(t)
	token, _ := tokens.Issue("operator1")

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"strategy_id":"strat1"}`)
	req := httptest.NewRequest(http.MethodPost, "/instances", body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArtifactEndpointsDegradeWithoutStorage(t *testing.T) {
	s, tokens := newTestServer(t)
	token, _ := tokens.Issue("operator1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/artifacts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
