package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curalink-advisory/internal/advisory"
	"github.com/curalink-advisory/internal/api"
	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/gateway"
	"github.com/curalink-advisory/internal/prompt"
	"github.com/curalink-advisory/pkg/gemini"
)

func newAnalyzeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "analyze"}
	addRequestFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestRequestFromFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want domain.AdvisoryRequest
	}{
		{
			name: "condition",
			args: []string{"--kind", "condition", "--text", "chronic migraines"},
			want: domain.ConditionQuery{Text: "chronic migraines"},
		},
		{
			name: "research",
			args: []string{"--kind", "research", "--specialty", "Oncology", "--specialty", "oncology", "--interest", "Immunotherapy"},
			want: domain.NewResearchQuery([]string{"Oncology"}, []string{"Immunotherapy"}, ""),
		},
		{
			name: "trial",
			args: []string{"--kind", "trial", "--title", "Vaccine trial"},
			want: domain.TrialSummaryQuery{Title: "Vaccine trial"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestFromFlags(newAnalyzeFlags(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := requestFromFlags(newAnalyzeFlags(t, "--kind", "genome"))
	assert.Error(t, err)
}

type fakeLister struct {
	models []gemini.Model
	err    error
}

func (f fakeLister) ListModels(context.Context) ([]gemini.Model, error) { return f.models, f.err }

func TestListModels(t *testing.T) {
	lister := fakeLister{models: []gemini.Model{
		{Name: "models/gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", InputTokenLimit: 1048576, OutputTokenLimit: 65536, SupportedGenerationMethods: []string{"generateContent"}},
		{Name: "models/text-embedding-004", DisplayName: "Embedding", SupportedGenerationMethods: []string{"embedContent"}},
	}}

	var out bytes.Buffer
	require.NoError(t, listModels(context.Background(), lister, &out, false))
	assert.Contains(t, out.String(), "models/gemini-2.5-flash")
	assert.NotContains(t, out.String(), "text-embedding-004")

	out.Reset()
	require.NoError(t, listModels(context.Background(), lister, &out, true))
	assert.Contains(t, out.String(), "text-embedding-004")

	assert.Error(t, listModels(context.Background(), fakeLister{err: errors.New("forbidden")}, &out, false))
}

// failingSender makes every request fall back.
type failingSender struct{}

func (failingSender) Send(context.Context, prompt.Prompt) (*gateway.Response, error) {
	return nil, &domain.GatewayFailure{Kind: domain.FailureExhausted, Attempts: 1, Err: errors.New("offline")}
}

func TestRunProbe_AgainstLocalServer(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc, err := advisory.NewService(advisory.Config{}, failingSender{}, logger)
	require.NoError(t, err)

	cfg := &domain.Config{Server: domain.ServerConfig{RequestTimeout: 5 * time.Second}}
	srv := httptest.NewServer(api.NewServer(cfg, svc, logger).Handler())
	defer srv.Close()

	var out bytes.Buffer
	failed := runProbe(context.Background(), srv.Client(), srv.URL+"/", &out)

	assert.Zero(t, failed, out.String())
	assert.Equal(t, len(probeChecks), strings.Count(out.String(), "Status: 200"))
	assert.Contains(t, out.String(), `"fallback": true`)
}

func TestRunProbe_CountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var out bytes.Buffer
	failed := runProbe(context.Background(), srv.Client(), srv.URL, &out)
	assert.Equal(t, len(probeChecks)-1, failed)
	assert.Contains(t, out.String(), "Status: 404")
}

func TestAnalyzeCommand_EndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"SUMMARY: Tests a vaccine in adults.\nELIGIBILITY HIGHLIGHTS:\n- Adults"}]}}]}`))
	}))
	defer upstream.Close()

	t.Setenv("ADVISORY_GEMINI_API_KEY", "test-key")
	t.Setenv("ADVISORY_GEMINI_BASE_URL", upstream.URL)
	t.Setenv("ADVISORY_LOGGING_LEVEL", "error")
	t.Setenv("ADVISORY_LOGGING_OUTPUT", "stderr")
	t.Setenv("ADVISORY_TELEMETRY_DRIVER", "none")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"analyze", "--kind", "trial", "--title", "Dendritic cell vaccine"})
	defer rootCmd.SetOut(nil)

	require.NoError(t, rootCmd.Execute())

	var result domain.TrialSummaryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "Tests a vaccine in adults.", result.Summary)
	assert.Equal(t, domain.SourceModel, result.Source)
	assert.False(t, result.Degraded)
}

func TestWithStdioSafeLogging(t *testing.T) {
	for output, want := range map[string]string{"": "stderr", "stdout": "stderr", "stderr": "stderr", "/var/log/advisory.log": "/var/log/advisory.log"} {
		cfg := &domain.Config{Logging: domain.LoggingConfig{Output: output}}
		withStdioSafeLogging(cfg)
		assert.Equal(t, want, cfg.Logging.Output, output)
	}
}
