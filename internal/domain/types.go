// Package domain contains the request and result types shared by the advisory
// components: the three advisory request variants, their typed results, and the
// error taxonomy used between the gateway, the parser, and the facade.
package domain

import (
	"sort"
	"strings"
)

// RequestKind identifies an advisory request variant and the result it produces.
type RequestKind string

const (
	KindCondition    RequestKind = "condition"
	KindResearch     RequestKind = "research"
	KindTrialSummary RequestKind = "trial_summary"
)

// AdvisoryRequest is implemented by ConditionQuery, ResearchQuery and TrialSummaryQuery.
type AdvisoryRequest interface {
	// Kind reports which variant the request is.
	Kind() RequestKind
	// Validate returns a *ValidationError when the request cannot be advised on.
	Validate() error
	// CanonicalContent returns the lower-cased, whitespace-collapsed content used
	// to derive cache keys. Set-valued fields are sorted.
	CanonicalContent() string
}

// ConditionQuery is a free-text description of a patient's condition.
type ConditionQuery struct {
	Text string `json:"text"`
}

// Kind implements AdvisoryRequest.
func (q ConditionQuery) Kind() RequestKind { return KindCondition }

// Validate implements AdvisoryRequest.
func (q ConditionQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return NewValidationError("text", "condition text cannot be empty", q.Text)
	}
	return nil
}

// CanonicalContent implements AdvisoryRequest.
func (q ConditionQuery) CanonicalContent() string {
	return Normalize(q.Text)
}

// ResearchQuery describes a researcher profile and an optional question.
// Specialties and Interests are sets; build them with NewResearchQuery.
type ResearchQuery struct {
	Specialties []string `json:"specialties"`
	Interests   []string `json:"research_interests"`
	Question    string   `json:"question,omitempty"`
}

// NewResearchQuery trims both sets, drops empty entries and removes
// case-insensitive duplicates while keeping the first spelling of each entry.
func NewResearchQuery(specialties, interests []string, question string) ResearchQuery {
	return ResearchQuery{
		Specialties: uniqueStrings(specialties),
		Interests:   uniqueStrings(interests),
		Question:    strings.TrimSpace(question),
	}
}

// Kind implements AdvisoryRequest.
func (q ResearchQuery) Kind() RequestKind { return KindResearch }

// Validate implements AdvisoryRequest.
func (q ResearchQuery) Validate() error {
	if len(uniqueStrings(q.Specialties)) == 0 && len(uniqueStrings(q.Interests)) == 0 {
		return NewValidationError("specialties", "at least one specialty or research interest is required", nil)
	}
	return nil
}

// CanonicalContent implements AdvisoryRequest.
func (q ResearchQuery) CanonicalContent() string {
	return "specialties=" + canonicalSet(q.Specialties) +
		"|interests=" + canonicalSet(q.Interests) +
		"|question=" + Normalize(q.Question)
}

// Topics returns the specialties followed by the interests.
func (q ResearchQuery) Topics() []string {
	topics := make([]string, 0, len(q.Specialties)+len(q.Interests))
	topics = append(topics, q.Specialties...)
	return append(topics, q.Interests...)
}

// TrialSummaryQuery carries the metadata of a clinical trial to summarize.
type TrialSummaryQuery struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Kind implements AdvisoryRequest.
func (q TrialSummaryQuery) Kind() RequestKind { return KindTrialSummary }

// Validate implements AdvisoryRequest.
func (q TrialSummaryQuery) Validate() error {
	if strings.TrimSpace(q.Title) == "" && strings.TrimSpace(q.Description) == "" {
		return NewValidationError("title", "trial title or description is required", nil)
	}
	return nil
}

// CanonicalContent implements AdvisoryRequest.
func (q TrialSummaryQuery) CanonicalContent() string {
	return "title=" + Normalize(q.Title) + "|description=" + Normalize(q.Description)
}

// Normalize lower-cases s and collapses every run of whitespace to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func canonicalSet(values []string) string {
	set := make([]string, 0, len(values))
	for _, v := range uniqueStrings(values) {
		set = append(set, Normalize(v))
	}
	sort.Strings(set)
	return strings.Join(set, ",")
}

func uniqueStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := Normalize(v)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
