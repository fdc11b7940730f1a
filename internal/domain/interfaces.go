package domain

import (
	"context"
)

// Advisor is the facade consumed by the HTTP edge and the CLI.
type Advisor interface {
	AnalyzeCondition(ctx context.Context, q ConditionQuery) (*ConditionResult, error)
	SuggestResearchCollaborations(ctx context.Context, q ResearchQuery) (*ResearchResult, error)
	SummarizeTrial(ctx context.Context, q TrialSummaryQuery) (*TrialSummaryResult, error)
	Advise(ctx context.Context, req AdvisoryRequest) (AdvisoryResult, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	Validate() error
}
