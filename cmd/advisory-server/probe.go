package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// probeCheck is one request of the smoke run.
type probeCheck struct {
	Name   string
	Method string
	Path   string
	Body   interface{}
}

var probeChecks = []probeCheck{
	{Name: "health", Method: http.MethodGet, Path: "/health"},
	{Name: "root", Method: http.MethodGet, Path: "/"},
	{Name: "status", Method: http.MethodGet, Path: "/api/ai/test"},
	{Name: "condition analysis", Method: http.MethodPost, Path: "/api/ai/analyze-condition", Body: map[string]string{
		"text":          "I have been diagnosed with brain cancer and looking for treatment options",
		"analysis_type": "condition",
	}},
	{Name: "condition question", Method: http.MethodPost, Path: "/api/ai/analyze-condition", Body: map[string]string{
		"text":          "What are the latest treatments for brain cancer?",
		"analysis_type": "condition",
	}},
	{Name: "research suggestions", Method: http.MethodPost, Path: "/api/ai/research-suggestions", Body: map[string]interface{}{
		"specialties":        []string{"Oncology", "Neurology"},
		"research_interests": []string{"Brain Cancer", "Immunotherapy"},
		"question":           "What are the best collaboration opportunities in brain cancer research?",
	}},
	{Name: "trial summary", Method: http.MethodPost, Path: "/api/ai/trial-summary", Body: map[string]string{
		"title":       "Immunotherapy Trial for Glioblastoma",
		"description": "A phase II clinical trial testing new immunotherapy approaches for patients with recurrent glioblastoma multiforme",
	}},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run smoke checks against a deployed advisory API",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseURL, _ := cmd.Flags().GetString("base-url")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client := &http.Client{Timeout: timeout}
		failed := runProbe(cmd.Context(), client, baseURL, cmd.OutOrStdout())
		if failed > 0 {
			return fmt.Errorf("%d of %d checks failed", failed, len(probeChecks))
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().String("base-url", "http://localhost:8080", "base URL of the advisory API")
	probeCmd.Flags().Duration("timeout", 60*time.Second, "per-request timeout")
	rootCmd.AddCommand(probeCmd)
}

// runProbe prints every check's status and body and returns how many failed.
// A check fails on a transport error or a non-2xx status.
func runProbe(ctx context.Context, client *http.Client, baseURL string, out io.Writer) int {
	baseURL = strings.TrimRight(baseURL, "/")
	failed := 0

	for i, check := range probeChecks {
		fmt.Fprintf(out, "\n%d. %s: %s %s\n", i+1, check.Name, check.Method, check.Path)

		status, body, err := probeOnce(ctx, client, baseURL, check)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "Status: %d\n", status)
		fmt.Fprintf(out, "Response: %s\n", body)
		if status < 200 || status > 299 {
			failed++
		}
	}
	return failed
}

func probeOnce(ctx context.Context, client *http.Client, baseURL string, check probeCheck) (int, string, error) {
	var body io.Reader
	if check.Body != nil {
		data, err := json.Marshal(check.Body)
		if err != nil {
			return 0, "", err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, check.Method, baseURL+check.Path, body)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		return resp.StatusCode, pretty.String(), nil
	}
	return resp.StatusCode, string(data), nil
}
