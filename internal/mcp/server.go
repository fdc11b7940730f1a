// Package mcp exposes the advisory operations as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/curalink-advisory/internal/domain"
)

// Tool names.
const (
	ToolAnalyzeCondition = "analyze_condition"
	ToolResearchIdeas    = "suggest_research_collaborations"
	ToolTrialSummary     = "summarize_trial"
)

// AnalyzeConditionParams defines parameters for analyze_condition tool
type AnalyzeConditionParams struct {
	Text string `json:"text" jsonschema:"free-text description of the patient's condition"`
}

// ResearchParams defines parameters for suggest_research_collaborations tool
type ResearchParams struct {
	Specialties []string `json:"specialties,omitempty" jsonschema:"the researcher's specialties"`
	Interests   []string `json:"research_interests,omitempty" jsonschema:"the researcher's research interests"`
	Question    string   `json:"question,omitempty" jsonschema:"an optional research question"`
}

// TrialSummaryParams defines parameters for summarize_trial tool
type TrialSummaryParams struct {
	Title       string `json:"title,omitempty" jsonschema:"trial title"`
	Description string `json:"description,omitempty" jsonschema:"trial description"`
}

// Server registers the advisory tools on an MCP server.
type Server struct {
	advisor   domain.Advisor
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance
func NewServer(advisor domain.Advisor, version string, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    "advisory-service",
		Version: version,
	}

	s := &Server{
		advisor:   advisor,
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAnalyzeCondition,
		Description: "Identify the primary condition, possible causes and relevant specialties in a condition description.",
	}, s.handleAnalyzeCondition)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolResearchIdeas,
		Description: "Suggest research collaboration areas for a set of specialties and interests.",
	}, s.handleResearch)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolTrialSummary,
		Description: "Summarize a clinical trial in plain language with eligibility highlights.",
	}, s.handleTrialSummary)

	s.logger.WithField("tool_count", 3).Debug("Registered MCP tools")
}

// Run serves the tools over stdin/stdout until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) handleAnalyzeCondition(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeConditionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAnalyzeCondition).Info("Tool invoked")

	result, err := s.advisor.AnalyzeCondition(ctx, domain.ConditionQuery{Text: params.Text})
	if err != nil {
		return s.createErrorResult(err), nil, nil
	}
	return s.createResult(result), result, nil
}

func (s *Server) handleResearch(ctx context.Context, req *mcp.CallToolRequest, params ResearchParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolResearchIdeas).Info("Tool invoked")

	q := domain.NewResearchQuery(params.Specialties, params.Interests, params.Question)
	result, err := s.advisor.SuggestResearchCollaborations(ctx, q)
	if err != nil {
		return s.createErrorResult(err), nil, nil
	}
	return s.createResult(result), result, nil
}

func (s *Server) handleTrialSummary(ctx context.Context, req *mcp.CallToolRequest, params TrialSummaryParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolTrialSummary).Info("Tool invoked")

	result, err := s.advisor.SummarizeTrial(ctx, domain.TrialSummaryQuery{Title: params.Title, Description: params.Description})
	if err != nil {
		return s.createErrorResult(err), nil, nil
	}
	return s.createResult(result), result, nil
}

// createResult renders result as indented JSON text content.
func (s *Server) createResult(result domain.AdvisoryResult) *mcp.CallToolResult {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return s.createErrorResult(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(err error) *mcp.CallToolResult {
	message := "advisory request failed"
	switch {
	case domain.IsValidationError(err):
		message = "invalid input"
	case domain.IsCallerTimeout(err):
		message = "request timed out"
	default:
		s.logger.WithError(err).Error("MCP tool call failed")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %s - %v", message, err)},
		},
		IsError: true,
	}
}
