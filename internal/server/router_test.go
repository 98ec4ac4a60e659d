package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skillcapital/coursebot/internal/api/handlers"
)

type MockAdvisorService struct {
	mock.Mock
}

func (m *MockAdvisorService) Answer(ctx context.Context, query, sessionID string) (string, string, error) {
	args := m.Called(ctx, query, sessionID)
	return args.String(0), args.String(1), args.Error(2)
}

func setupRouter() (http.Handler, *MockAdvisorService) {
	advisorSvc := new(MockAdvisorService)

	cfg := RouterConfig{
		ChatHandler: handlers.NewChatHandler(advisorSvc),
	}

	return NewRouter(cfg), advisorSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouter_WidgetEndpoint(t *testing.T) {
	router, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "SKILL CAPITAL SUPPORT")
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, advisorSvc := setupRouter()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://courses.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	advisorSvc.AssertNotCalled(t, "Answer")
}

func TestRouter_CORSOnChatResponse(t *testing.T) {
	router, advisorSvc := setupRouter()

	advisorSvc.On("Answer", mock.Anything, "hello", "").Return("hi there", "s-1", nil)

	body, err := json.Marshal(map[string]string{"message": "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Origin", "https://courses.example.com")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ChatEndpoint(t *testing.T) {
	router, advisorSvc := setupRouter()

	advisorSvc.On("Answer", mock.Anything, "hello", "").Return("hi there", "s-1", nil)

	body, err := json.Marshal(map[string]string{"message": "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp handlers.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hi there", resp.Reply)
	assert.Equal(t, "s-1", resp.SessionID)
	advisorSvc.AssertExpectations(t)
}

func TestRouter_ChatRejectsOversizedBody(t *testing.T) {
	router, _ := setupRouter()

	huge := `{"message":"` + strings.Repeat("a", 2*1024*1024) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(huge))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
