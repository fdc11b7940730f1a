package advisory

import (
	"fmt"
	"strings"

	"github.com/curalink-advisory/internal/conditions"
	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/prompt"
)

// FallbackNotice is attached to every fallback result.
const FallbackNotice = "AI analysis is temporarily unavailable. These results were generated without the model and may be incomplete."

const unavailableCondition = "Analysis unavailable"

var genericSuggestions = []string{
	"Consider interdisciplinary collaborations",
	"Explore international partnerships",
	"Join research networks in your field",
}

func fallbackMeta() domain.ResultMeta {
	return domain.ResultMeta{
		Degraded: true,
		Fallback: true,
		Source:   domain.SourceFallback,
		Notice:   FallbackNotice,
	}
}

// fallback builds the static result for req. It depends only on the request
// and the local condition vocabulary.
func fallback(req domain.AdvisoryRequest, proc *conditions.Processor) domain.AdvisoryResult {
	switch q := req.(type) {
	case domain.ConditionQuery:
		return conditionFallback(q, proc)
	case domain.ResearchQuery:
		return researchFallback(q)
	case domain.TrialSummaryQuery:
		return trialFallback(q)
	default:
		return &domain.ConditionResult{PrimaryCondition: unavailableCondition, ResultMeta: fallbackMeta()}
	}
}

func conditionFallback(q domain.ConditionQuery, proc *conditions.Processor) *domain.ConditionResult {
	r := &domain.ConditionResult{ResultMeta: fallbackMeta()}

	id := proc.Identify(q.Text)
	r.PrimaryCondition = id.PrimaryCondition
	if r.PrimaryCondition == "" {
		r.PrimaryCondition = unavailableCondition
	}

	seen := map[string]bool{}
	for _, c := range id.IdentifiedConditions {
		for _, s := range proc.SpecialtiesFor(c) {
			if !seen[s] {
				seen[s] = true
				r.SuggestedSpecialties = append(r.SuggestedSpecialties, s)
			}
		}
	}

	r.MarkMissing(prompt.FieldPossibleCauses)
	if len(r.SuggestedSpecialties) == 0 {
		r.MarkMissing(prompt.FieldSuggestedSpecialties)
	}
	r.MarkMissing(prompt.FieldConfidence)
	return r
}

func researchFallback(q domain.ResearchQuery) *domain.ResearchResult {
	r := &domain.ResearchResult{ResultMeta: fallbackMeta()}

	for _, topic := range domain.NewResearchQuery(q.Specialties, q.Interests, "").Topics() {
		r.Suggestions = append(r.Suggestions, domain.Suggestion{
			CollaboratorArea: topic,
			Rationale:        fmt.Sprintf("Connect with researchers working on %s.", topic),
		})
	}
	if len(r.Suggestions) == 0 {
		for _, s := range genericSuggestions {
			r.Suggestions = append(r.Suggestions, domain.Suggestion{CollaboratorArea: s})
		}
		r.MarkMissing(prompt.FieldRationale)
	}
	return r
}

func trialFallback(q domain.TrialSummaryQuery) *domain.TrialSummaryResult {
	subject := strings.TrimSpace(q.Title)
	if subject == "" {
		subject = "the condition described"
	}

	r := &domain.TrialSummaryResult{
		Summary:    fmt.Sprintf("This trial studies %s. Contact the research team for more details.", subject),
		ResultMeta: fallbackMeta(),
	}
	r.MarkMissing(prompt.FieldEligibilityHighlights)
	return r
}
