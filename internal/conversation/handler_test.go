package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

type failingTurns struct{}

func (failingTurns) Process(context.Context, string, string) (*Result, error) {
	return nil, errors.New("boom")
}

func newChatRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Get("/chat/sessions/{sessionID}", h.Session)
	r.Delete("/chat/sessions/{sessionID}", h.ResetSession)
	return r
}

func TestChatHandler(t *testing.T) {
	f := newAgentFixture(t)
	router := newChatRouter(NewHandler(NewRegistry(f.agent), logging.Discard()))

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","session_id":"web-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Our towers start at 2M AED.", body["response"])
	assert.Equal(t, "no_interest", body["lead_state"])
	assert.Contains(t, body, "lead_info")
	assert.Nil(t, body["lead_info"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/web-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/chat/sessions/web-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/web-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatHandlerSessionHeader(t *testing.T) {
	f := newAgentFixture(t)
	reg := NewRegistry(f.agent)
	router := newChatRouter(NewHandler(reg, logging.Discard()))

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("X-Session-ID", "hdr")
	router.ServeHTTP(httptest.NewRecorder(), req)

	_, ok := reg.Snapshot("hdr")
	assert.True(t, ok)
}

func TestChatHandlerMintsSessionPerAnonymousCaller(t *testing.T) {
	f := newAgentFixture(t)
	f.extractor.script = []map[string]any{fullContact()}
	reg := NewRegistry(f.agent)
	router := newChatRouter(NewHandler(reg, logging.Discard()))

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message":"I want to buy, I'm Alex alex@x.com 9876543210"}`)))
	require.Equal(t, http.StatusOK, first.Code)
	firstID := first.Header().Get(SessionHeader)
	require.NotEmpty(t, firstID)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`)))
	require.Equal(t, http.StatusOK, second.Code)
	secondID := second.Header().Get(SessionHeader)
	require.NotEmpty(t, secondID)
	assert.NotEqual(t, firstID, secondID)

	var body map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "no_interest", body["lead_state"])
	assert.Nil(t, body["lead_info"])
	assert.Equal(t, 2, reg.Len())
	assert.Empty(t, f.crm.created)

	// the echoed id continues the first conversation
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"ok"}`))
	req.Header.Set(SessionHeader, firstID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, firstID, rec.Header().Get(SessionHeader))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "awaiting_meeting_confirmation", body["lead_state"])
}

func TestChatHandlerRejectsBadInput(t *testing.T) {
	f := newAgentFixture(t)
	router := newChatRouter(NewHandler(NewRegistry(f.agent), logging.Discard()))

	cases := map[string]struct {
		body string
		want string
	}{
		"empty body":    {"", `{"error":"No message provided."}`},
		"blank message": {`{"message":"   "}`, `{"error":"No message provided."}`},
		"invalid json":  {`{"message":`, `{"error":"Invalid request body"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
		})
	}
}

func TestChatHandlerProcessError(t *testing.T) {
	router := newChatRouter(NewHandler(failingTurns{}, logging.Discard()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
