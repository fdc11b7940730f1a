package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curalink-advisory/internal/advisory"
	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/gateway"
	"github.com/curalink-advisory/internal/prompt"
	"github.com/curalink-advisory/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedSender replies per request kind; an unset kind fails the call.
type scriptedSender struct {
	replies map[domain.RequestKind]string
	// release, when set, holds every call until it is closed.
	release chan struct{}
}

func (s *scriptedSender) Send(ctx context.Context, p prompt.Prompt) (*gateway.Response, error) {
	if s.release != nil {
		<-s.release
	}
	reply, ok := s.replies[p.Kind]
	if !ok {
		return nil, &domain.GatewayFailure{Kind: domain.FailureExhausted, Attempts: 3, Err: errors.New("upstream down")}
	}
	return &gateway.Response{Text: reply, Attempts: 1}, nil
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *domain.APIError       `json:"error"`
}

func testConfig() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			Port:            0,
			RequestTimeout:  2 * time.Second,
			ShutdownTimeout: time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Gemini:  domain.GeminiConfig{Model: "gemini-2.5-flash"},
		Logging: domain.LoggingConfig{Level: "info"},
	}
}

func createTestServer(t *testing.T, sender advisory.Sender, cfg *domain.Config) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc, err := advisory.NewService(advisory.Config{}, sender, logger)
	require.NoError(t, err)
	return NewServer(cfg, svc, logger)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealth(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	w, _ := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestRoot_ListsEndpoints(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	w, _ := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/ai/analyze-condition")
}

func TestAnalyzeCondition_ModelAnswer(t *testing.T) {
	sender := &scriptedSender{replies: map[domain.RequestKind]string{
		domain.KindCondition: "PRIMARY CONDITION: brain cancer\nSUGGESTED SPECIALTIES:\n- Oncology\n- Neurology\nCONFIDENCE: 0.85",
	}}
	s := createTestServer(t, sender, testConfig())

	w, env := do(t, s, http.MethodPost, "/api/ai/analyze-condition",
		`{"text":"I have been diagnosed with brain cancer and looking for treatment options","analysis_type":"condition"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)

	assert.Equal(t, "brain cancer", env.Data["primaryCondition"])
	assert.Equal(t, "model", env.Data["source"])
	assert.Equal(t, false, env.Data["fallback"])
	assert.InDelta(t, 0.85, env.Data["confidence"], 1e-9)
	assert.Contains(t, env.Data["identifiedConditions"], "Brain Cancer")
}

func TestAnalyzeCondition_FallbackWhenUpstreamFails(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	w, env := do(t, s, http.MethodPost, "/api/ai/analyze-condition",
		`{"text":"I have been diagnosed with brain cancer"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)

	assert.Equal(t, true, env.Data["degraded"])
	assert.Equal(t, true, env.Data["fallback"])
	assert.Equal(t, "Brain Cancer", env.Data["primaryCondition"])
	assert.NotEmpty(t, env.Data["notice"])
}

func TestAnalyzeCondition_Errors(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"text":`, domain.ErrInvalidInput},
		{"empty text", `{"text":"   "}`, domain.ErrValidation},
		{"unsupported analysis type", `{"text":"asthma","analysis_type":"genetic"}`, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, s, http.MethodPost, "/api/ai/analyze-condition", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, w.Header().Get("X-Correlation-ID"), env.Error.RequestID)
		})
	}
}

func TestResearchSuggestions(t *testing.T) {
	sender := &scriptedSender{replies: map[domain.RequestKind]string{
		domain.KindResearch: "COLLABORATIONS:\n- Neuro-oncology: combine Oncology and Neurology on glioma cohorts",
	}}
	s := createTestServer(t, sender, testConfig())

	w, env := do(t, s, http.MethodPost, "/api/ai/research-suggestions",
		`{"specialties":["Oncology","Neurology"],"research_interests":["Brain Cancer","Immunotherapy"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)

	suggestions, ok := env.Data["suggestions"].([]interface{})
	require.True(t, ok)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Neuro-oncology", suggestions[0].(map[string]interface{})["collaboratorArea"])
}

func TestResearchSuggestions_RequiresTopics(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	w, env := do(t, s, http.MethodPost, "/api/ai/research-suggestions", `{"specialties":[" "],"research_interests":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, domain.ErrValidation, env.Error.Code)
}

func TestTrialSummary(t *testing.T) {
	sender := &scriptedSender{replies: map[domain.RequestKind]string{
		domain.KindTrialSummary: "SUMMARY: Tests a vaccine in adults.\nELIGIBILITY HIGHLIGHTS:\n- Adults\n- No prior treatment",
	}}
	s := createTestServer(t, sender, testConfig())

	w, env := do(t, s, http.MethodPost, "/api/ai/trial-summary",
		`{"title":"Immunotherapy for Brain Cancer","description":"A phase II trial of a dendritic cell vaccine."}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tests a vaccine in adults.", env.Data["summary"])
	assert.Len(t, env.Data["eligibilityHighlights"], 2)
}

func TestCallerTimeoutMapsToGatewayTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RequestTimeout = 30 * time.Millisecond
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	s := createTestServer(t, &scriptedSender{release: release}, cfg)

	w, env := do(t, s, http.MethodPost, "/api/ai/trial-summary", `{"title":"Slow trial"}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, domain.ErrUpstreamTimeout, env.Error.Code)
}

func TestStatus(t *testing.T) {
	sender := &scriptedSender{replies: map[domain.RequestKind]string{
		domain.KindTrialSummary: "SUMMARY: Tests a vaccine in adults.",
	}}
	s := createTestServer(t, sender, testConfig())

	do(t, s, http.MethodPost, "/api/ai/trial-summary", `{"title":"Vaccine trial"}`)
	do(t, s, http.MethodPost, "/api/ai/trial-summary", `{"title":"Vaccine trial"}`)

	w, env := do(t, s, http.MethodGet, "/api/ai/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "operational", env.Data["status"])
	assert.Equal(t, "gemini-2.5-flash", env.Data["model"])

	service, ok := env.Data["service"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), service["requests"])
	assert.Equal(t, float64(1), service["cache_hits"])
}

func TestEventsAndOutcomes(t *testing.T) {
	store, err := telemetry.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	sender := &scriptedSender{replies: map[domain.RequestKind]string{
		domain.KindTrialSummary: "SUMMARY: Tests a vaccine in adults.",
	}}
	svc, err := advisory.NewService(advisory.Config{}, sender, logger, advisory.WithRecorder(store))
	require.NoError(t, err)
	s := NewServer(testConfig(), svc, logger)

	do(t, s, http.MethodPost, "/api/ai/trial-summary", `{"title":"Vaccine trial"}`)
	do(t, s, http.MethodPost, "/api/ai/trial-summary", `{"title":"Vaccine trial"}`)

	w, env := do(t, s, http.MethodGet, "/api/ai/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"model": float64(1), "cache": float64(1)}, env.Data["outcomes"])

	w, env = do(t, s, http.MethodGet, "/api/ai/events?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	events, ok := env.Data["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "trial_summary", events[0].(map[string]interface{})["kind"])

	for _, limit := range []string{"0", "abc", "101"} {
		w, env = do(t, s, http.MethodGet, "/api/ai/events?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
		require.NotNil(t, env.Error)
		assert.Equal(t, domain.ErrValidation, env.Error.Code)
	}
}

func TestEvents_EmptyWithoutStore(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	w, env := do(t, s, http.MethodGet, "/api/ai/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, env.Data["events"])
}

func TestSuggestConditions(t *testing.T) {
	s := createTestServer(t, &scriptedSender{}, testConfig())

	w, env := do(t, s, http.MethodGet, "/api/conditions/suggest?q=cancer", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancer", env.Data["query"])
	assert.NotEmpty(t, env.Data["suggestions"])

	w, env = do(t, s, http.MethodGet, "/api/conditions/suggest", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, domain.ErrValidation, env.Error.Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := createTestServer(t, &scriptedSender{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
