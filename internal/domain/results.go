package domain

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ResultSource tells where an advisory result came from.
type ResultSource string

const (
	SourceModel    ResultSource = "model"
	SourceCache    ResultSource = "cache"
	SourceFallback ResultSource = "fallback"
)

// ResultMeta is embedded in every advisory result.
type ResultMeta struct {
	// Degraded is set when the result came from heuristic parsing or a fallback.
	Degraded bool `json:"degraded"`
	// Fallback is set when the result is the static payload used when no model
	// answer could be obtained.
	Fallback bool         `json:"fallback"`
	Source   ResultSource `json:"source"`
	// Missing lists the fields that could not be populated.
	Missing []string `json:"missing,omitempty"`
	Notice  string   `json:"notice,omitempty"`
}

// Meta returns the result metadata.
func (m *ResultMeta) Meta() *ResultMeta { return m }

// MarkMissing records field as absent, once.
func (m *ResultMeta) MarkMissing(field string) {
	if !slices.Contains(m.Missing, field) {
		m.Missing = append(m.Missing, field)
	}
}

// AdvisoryResult is implemented by the result variants.
type AdvisoryResult interface {
	Kind() RequestKind
	Meta() *ResultMeta
	// Clone returns a deep copy so cached results are never shared with callers.
	Clone() AdvisoryResult
}

// ConditionResult is produced for a ConditionQuery.
type ConditionResult struct {
	PrimaryCondition     string   `json:"primaryCondition"`
	PossibleCauses       []string `json:"possibleCauses"`
	SuggestedSpecialties []string `json:"suggestedSpecialties"`
	// Confidence is in [0,1]; nil means the model did not report one.
	Confidence *float64 `json:"confidence,omitempty"`
	ResultMeta
}

// Kind implements AdvisoryResult.
func (r *ConditionResult) Kind() RequestKind { return KindCondition }

// Clone implements AdvisoryResult.
func (r *ConditionResult) Clone() AdvisoryResult {
	c := *r
	c.PossibleCauses = slices.Clone(r.PossibleCauses)
	c.SuggestedSpecialties = slices.Clone(r.SuggestedSpecialties)
	c.Missing = slices.Clone(r.Missing)
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	return &c
}

// Suggestion is one proposed research collaboration.
type Suggestion struct {
	CollaboratorArea string `json:"collaboratorArea"`
	Rationale        string `json:"rationale,omitempty"`
}

// ResearchResult is produced for a ResearchQuery.
type ResearchResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	ResultMeta
}

// Kind implements AdvisoryResult.
func (r *ResearchResult) Kind() RequestKind { return KindResearch }

// Clone implements AdvisoryResult.
func (r *ResearchResult) Clone() AdvisoryResult {
	c := *r
	c.Suggestions = slices.Clone(r.Suggestions)
	c.Missing = slices.Clone(r.Missing)
	return &c
}

// TrialSummaryResult is produced for a TrialSummaryQuery.
type TrialSummaryResult struct {
	Summary               string   `json:"summary"`
	EligibilityHighlights []string `json:"eligibilityHighlights"`
	ResultMeta
}

// Kind implements AdvisoryResult.
func (r *TrialSummaryResult) Kind() RequestKind { return KindTrialSummary }

// Clone implements AdvisoryResult.
func (r *TrialSummaryResult) Clone() AdvisoryResult {
	c := *r
	c.EligibilityHighlights = slices.Clone(r.EligibilityHighlights)
	c.Missing = slices.Clone(r.Missing)
	return &c
}

type resultEnvelope struct {
	Kind   RequestKind     `json:"kind"`
	Result json.RawMessage `json:"result"`
}

// MarshalResult encodes a result together with its kind so UnmarshalResult can
// restore the concrete type.
func MarshalResult(r AdvisoryResult) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s result: %w", r.Kind(), err)
	}
	return json.Marshal(resultEnvelope{Kind: r.Kind(), Result: body})
}

// UnmarshalResult decodes data produced by MarshalResult.
func UnmarshalResult(data []byte) (AdvisoryResult, error) {
	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result envelope: %w", err)
	}

	var r AdvisoryResult
	switch env.Kind {
	case KindCondition:
		r = &ConditionResult{}
	case KindResearch:
		r = &ResearchResult{}
	case KindTrialSummary:
		r = &TrialSummaryResult{}
	default:
		return nil, fmt.Errorf("unknown result kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Result, r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s result: %w", env.Kind, err)
	}
	return r, nil
}
