// Package parser converts unstructured model replies into typed advisory results.
//
// Parsing runs in two passes. The strict pass reads the labeled sections the
// prompt asked for. When a required section is absent, the heuristic pass fills
// it from the surrounding prose and marks the result degraded. A paragraph
// break ends a section, so closing prose is never read as section data; its
// presence also marks the result degraded. A reply with no usable content
// yields *domain.ParseFailure.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/prompt"
)

const maxPrimaryRunes = 120

var confidencePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(%)?`)

// Parser is stateless apart from its specialty vocabulary and is safe for
// concurrent use.
type Parser struct {
	specialties []specialtyTerm
}

type specialtyTerm struct {
	name    string
	pattern *regexp.Regexp
}

// New creates a Parser that recognizes the given clinical specialties in prose.
func New(knownSpecialties []string) *Parser {
	p := &Parser{}
	for _, s := range knownSpecialties {
		p.specialties = append(p.specialties, specialtyTerm{
			name:    s,
			pattern: regexp.MustCompile(`(?i)(?:^|[^\p{L}])` + regexp.QuoteMeta(s) + `(?:$|[^\p{L}])`),
		})
	}
	return p
}

// Parse converts raw into the result type described by schema.
func (p *Parser) Parse(raw string, schema prompt.Schema) (domain.AdvisoryResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &domain.ParseFailure{Kind: schema.Kind, Reason: "empty response"}
	}

	doc := split(raw, schema)

	var (
		result domain.AdvisoryResult
		ok     bool
	)
	switch schema.Kind {
	case domain.KindCondition:
		result, ok = p.parseCondition(raw, doc)
	case domain.KindResearch:
		result, ok = p.parseResearch(doc)
	case domain.KindTrialSummary:
		result, ok = p.parseTrial(doc)
	default:
		return nil, &domain.ParseFailure{Kind: schema.Kind, Reason: "unknown schema"}
	}
	if !ok {
		return nil, &domain.ParseFailure{Kind: schema.Kind, Reason: "no usable content"}
	}

	meta := result.Meta()
	meta.Source = domain.SourceModel
	meta.Degraded = doc.stray
	for _, sec := range schema.Sections {
		if sec.Required && !doc.has(sec.Field) {
			meta.Degraded = true
		}
	}
	return result, nil
}

func (p *Parser) parseCondition(raw string, doc document) (domain.AdvisoryResult, bool) {
	r := &domain.ConditionResult{}
	remaining := nonEmpty(doc.free)

	if doc.has(prompt.FieldPrimaryCondition) {
		r.PrimaryCondition = firstSentence(doc.sections[prompt.FieldPrimaryCondition][0])
	} else if paras := doc.paragraphs(); len(paras) > 0 {
		r.PrimaryCondition = firstSentence(paras[0][0])
		remaining = nonEmpty(doc.free)[1:]
	}
	r.PrimaryCondition = capRunes(r.PrimaryCondition, maxPrimaryRunes)

	if doc.has(prompt.FieldPossibleCauses) {
		r.PossibleCauses = sectionList(doc.sections[prompt.FieldPossibleCauses])
	} else {
		for _, item := range listItems(remaining) {
			if !p.isSpecialty(item) {
				r.PossibleCauses = append(r.PossibleCauses, item)
			}
		}
	}

	if doc.has(prompt.FieldSuggestedSpecialties) {
		r.SuggestedSpecialties = sectionList(doc.sections[prompt.FieldSuggestedSpecialties])
	} else {
		r.SuggestedSpecialties = p.scanSpecialties(raw)
	}

	if doc.has(prompt.FieldConfidence) {
		r.Confidence = parseConfidence(doc.sections[prompt.FieldConfidence][0])
	}

	if r.PrimaryCondition == "" {
		return nil, false
	}
	if len(r.PossibleCauses) == 0 {
		r.MarkMissing(prompt.FieldPossibleCauses)
	}
	if len(r.SuggestedSpecialties) == 0 {
		r.MarkMissing(prompt.FieldSuggestedSpecialties)
	}
	if r.Confidence == nil {
		r.MarkMissing(prompt.FieldConfidence)
	}
	return r, true
}

func (p *Parser) parseResearch(doc document) (domain.AdvisoryResult, bool) {
	r := &domain.ResearchResult{}

	lines := nonEmpty(doc.free)
	if doc.has(prompt.FieldSuggestions) {
		lines = doc.sections[prompt.FieldSuggestions]
	}
	for _, item := range listItems(lines) {
		if s, ok := p.suggestion(item); ok {
			r.Suggestions = append(r.Suggestions, s)
		}
	}

	if len(r.Suggestions) == 0 {
		return nil, false
	}
	markMissingRationale(r)
	return r, true
}

// markMissingRationale lists the rationale as missing when any suggestion
// came without one.
func markMissingRationale(r *domain.ResearchResult) {
	for _, s := range r.Suggestions {
		if s.Rationale == "" {
			r.MarkMissing(prompt.FieldRationale)
			return
		}
	}
}

func (p *Parser) parseTrial(doc document) (domain.AdvisoryResult, bool) {
	r := &domain.TrialSummaryResult{}
	remaining := nonEmpty(doc.free)

	if doc.has(prompt.FieldSummary) {
		r.Summary = strings.Join(doc.sections[prompt.FieldSummary], " ")
	} else if paras := doc.paragraphs(); len(paras) > 0 {
		r.Summary = strings.Join(paras[0], " ")
		remaining = nonEmpty(doc.free)[len(paras[0]):]
	}

	if doc.has(prompt.FieldEligibilityHighlights) {
		r.EligibilityHighlights = sectionList(doc.sections[prompt.FieldEligibilityHighlights])
	} else {
		r.EligibilityHighlights = listItems(remaining)
	}

	if r.Summary == "" {
		return nil, false
	}
	if len(r.EligibilityHighlights) == 0 {
		r.MarkMissing(prompt.FieldEligibilityHighlights)
	}
	return r, true
}

// suggestion splits "area: rationale" (or "area - rationale") into a Suggestion.
func (p *Parser) suggestion(item string) (domain.Suggestion, bool) {
	for _, sep := range []string{":", " - ", " – ", " — "} {
		if i := strings.Index(item, sep); i > 0 {
			area := strings.TrimSpace(item[:i])
			rationale := strings.TrimSpace(item[i+len(sep):])
			if area != "" && utf8.RuneCountInString(area) <= maxPrimaryRunes {
				return domain.Suggestion{CollaboratorArea: area, Rationale: rationale}, true
			}
		}
	}

	item = strings.TrimSpace(item)
	if item == "" {
		return domain.Suggestion{}, false
	}
	if utf8.RuneCountInString(item) > maxPrimaryRunes {
		if found := p.scanSpecialties(item); len(found) > 0 {
			return domain.Suggestion{CollaboratorArea: found[0], Rationale: item}, true
		}
		return domain.Suggestion{CollaboratorArea: capRunes(firstSentence(item), maxPrimaryRunes), Rationale: item}, true
	}
	return domain.Suggestion{CollaboratorArea: strings.TrimRight(item, "."), Rationale: ""}, true
}

// scanSpecialties returns known specialties mentioned in text, in order of
// first appearance.
func (p *Parser) scanSpecialties(text string) []string {
	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, s := range p.specialties {
		if loc := s.pattern.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{s.name, loc[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}

func (p *Parser) isSpecialty(item string) bool {
	for _, s := range p.specialties {
		if strings.EqualFold(strings.TrimRight(item, "."), s.name) {
			return true
		}
	}
	return false
}

// parseConfidence reads a number from s. Values above 1 are read as
// percentages; anything outside [0,1] after that is discarded.
func parseConfidence(s string) *float64 {
	m := confidencePattern.FindStringSubmatch(s)
	if m == nil {
		switch strings.ToLower(strings.TrimSpace(strings.TrimRight(s, "."))) {
		case "high":
			v := 0.8
			return &v
		case "medium", "moderate":
			v := 0.5
			return &v
		case "low":
			v := 0.2
			return &v
		}
		return nil
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	if m[2] == "%" || v > 1 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return nil
	}
	return &v
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
