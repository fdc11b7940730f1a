// Package api exposes the advisory facade over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/curalink-advisory/internal/advisory"
	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/middleware"
	"github.com/curalink-advisory/internal/telemetry"
)

// Version is reported by /health and /.
const Version = "1.0.0"

// Advisor is the part of *advisory.Service the HTTP edge uses.
type Advisor interface {
	Advise(ctx context.Context, req domain.AdvisoryRequest) (domain.AdvisoryResult, error)
	Status() advisory.Status
	SuggestConditions(input string) []string
	IdentifyConditions(text string) []string
	Outcomes(ctx context.Context) (map[telemetry.Outcome]int64, error)
	RecentEvents(ctx context.Context, limit int) ([]*telemetry.Event, error)
}

// Bounds for GET /api/ai/events.
const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

// Server represents the HTTP server
type Server struct {
	cfg     domain.ServerConfig
	model   string
	advisor Advisor
	logger  *logrus.Logger
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, advisor Advisor, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	s := &Server{
		cfg:     cfg.Server,
		model:   cfg.Gemini.Model,
		advisor: advisor,
		logger:  logger,
		router:  router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/", s.handleRoot)

	ai := s.router.Group("/api/ai")
	ai.Use(middleware.RequestTimeout(s.cfg.RequestTimeout))
	{
		ai.GET("/test", s.handleStatus)
		ai.GET("/events", s.handleEvents)
		ai.POST("/analyze-condition", s.handleAnalyzeCondition)
		ai.POST("/research-suggestions", s.handleResearchSuggestions)
		ai.POST("/trial-summary", s.handleTrialSummary)
	}

	s.router.GET("/api/conditions/suggest", s.handleSuggestConditions)
}

type analyzeConditionRequest struct {
	Text         string `json:"text"`
	AnalysisType string `json:"analysis_type"`
}

type researchSuggestionsRequest struct {
	Specialties []string `json:"specialties"`
	Interests   []string `json:"research_interests"`
	Question    string   `json:"question"`
}

type trialSummaryRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// conditionResponse adds the locally identified conditions to the result.
type conditionResponse struct {
	*domain.ConditionResult
	IdentifiedConditions []string `json:"identifiedConditions"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "advisory-service",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /api/ai/test",
			"GET /api/ai/events?limit=",
			"POST /api/ai/analyze-condition",
			"POST /api/ai/research-suggestions",
			"POST /api/ai/trial-summary",
			"GET /api/conditions/suggest?q=",
		},
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.advisor.Status()

	state := "operational"
	if status.Gateway != nil && status.Gateway.BreakerState == "open" {
		state = "degraded"
	}

	data := gin.H{
		"status":  state,
		"model":   s.model,
		"service": status,
	}
	if outcomes, err := s.advisor.Outcomes(c.Request.Context()); err != nil {
		s.logger.WithError(err).Warn("Failed to summarize advisory outcomes")
	} else {
		data["outcomes"] = outcomes
	}
	respondOK(c, data)
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			s.respondError(c, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxEventLimit), raw))
			return
		}
		limit = n
	}

	events, err := s.advisor.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if events == nil {
		events = []*telemetry.Event{}
	}
	respondOK(c, gin.H{"events": events})
}

func (s *Server) handleAnalyzeCondition(c *gin.Context) {
	var req analyzeConditionRequest
	if !s.bind(c, &req) {
		return
	}
	if req.AnalysisType != "" && req.AnalysisType != "condition" {
		s.respondError(c, domain.NewValidationError("analysis_type", "only \"condition\" analysis is supported", req.AnalysisType))
		return
	}

	result, ok := s.advise(c, domain.ConditionQuery{Text: req.Text})
	if !ok {
		return
	}
	cond, isCondition := result.(*domain.ConditionResult)
	if !isCondition {
		s.respondError(c, fmt.Errorf("unexpected result type %T", result))
		return
	}

	identified := s.advisor.IdentifyConditions(req.Text)
	if len(identified) == 0 {
		identified = []string{cond.PrimaryCondition}
	}
	respondOK(c, conditionResponse{ConditionResult: cond, IdentifiedConditions: identified})
}

func (s *Server) handleResearchSuggestions(c *gin.Context) {
	var req researchSuggestionsRequest
	if !s.bind(c, &req) {
		return
	}

	if result, ok := s.advise(c, domain.NewResearchQuery(req.Specialties, req.Interests, req.Question)); ok {
		respondOK(c, result)
	}
}

func (s *Server) handleTrialSummary(c *gin.Context) {
	var req trialSummaryRequest
	if !s.bind(c, &req) {
		return
	}

	if result, ok := s.advise(c, domain.TrialSummaryQuery{Title: req.Title, Description: req.Description}); ok {
		respondOK(c, result)
	}
}

func (s *Server) handleSuggestConditions(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		s.respondError(c, domain.NewValidationError("q", "query parameter is required", nil))
		return
	}

	respondOK(c, gin.H{
		"query":       q,
		"suggestions": s.advisor.SuggestConditions(q),
	})
}

func (s *Server) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   domain.NewAPIError(domain.ErrInvalidInput, "request body must be valid JSON", err.Error(), c.GetString(middleware.CorrelationIDKey)),
		})
		return false
	}
	return true
}

func (s *Server) advise(c *gin.Context, req domain.AdvisoryRequest) (domain.AdvisoryResult, bool) {
	result, err := s.advisor.Advise(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return result, true
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var (
		status  int
		apiErr  *domain.APIError
		invalid *domain.ValidationError
	)
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		apiErr = domain.NewAPIError(domain.ErrValidation, invalid.Message, invalid.Field, requestID)
	case domain.IsCallerTimeout(err):
		status = http.StatusGatewayTimeout
		apiErr = domain.NewAPIError(domain.ErrUpstreamTimeout, "the advisory request timed out", "", requestID)
	default:
		status = http.StatusInternalServerError
		apiErr = domain.NewAPIError(domain.ErrInternalServer, "internal error", "", requestID)
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Advisory request failed")
	}

	c.JSON(status, gin.H{"success": false, "error": apiErr})
}
