// Package prompt turns advisory requests into deterministic model prompts.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/curalink-advisory/internal/domain"
)

// DefaultMaxInputChars caps each caller-supplied text field, counted in runes.
const DefaultMaxInputChars = 4000

// TruncationMarker is appended to a field that exceeded the cap.
const TruncationMarker = "[... input truncated ...]"

var funcs = template.FuncMap{"join": strings.Join}

var conditionTmpl = template.Must(template.New("condition").Funcs(funcs).Parse(
	`You are a medical information assistant for a platform that connects patients with specialists, clinical trials and research.
Read the patient's description and identify the most likely primary condition, its possible causes and the clinical specialties that treat it.
Do not provide a diagnosis or treatment advice.

Patient description:
{{.Text}}

{{.Directive}}
`))

var researchTmpl = template.Must(template.New("research").Funcs(funcs).Parse(
	`You are a research networking assistant for medical researchers.
Suggest collaboration areas that complement the researcher profile below.

Specialties: {{or (join .Specialties ", ") "none given"}}
Research interests: {{or (join .Interests ", ") "none given"}}
Question: {{or .Question "none given"}}

{{.Directive}}
`))

var trialTmpl = template.Must(template.New("trial_summary").Funcs(funcs).Parse(
	`You are a clinical trial assistant writing for patients.
Summarize the clinical trial below in plain language and list its key eligibility criteria.

Title: {{or .Title "not provided"}}
Description: {{or .Description "not provided"}}

{{.Directive}}
`))

// Prompt is the rendered model input for one request.
type Prompt struct {
	Kind      domain.RequestKind
	Text      string
	Schema    Schema
	Truncated bool
}

// Builder renders prompts. It is safe for concurrent use.
type Builder struct {
	maxInputChars int
}

// NewBuilder creates a Builder; a non-positive cap falls back to DefaultMaxInputChars.
func NewBuilder(cfg domain.PromptConfig) *Builder {
	limit := cfg.MaxInputChars
	if limit <= 0 {
		limit = DefaultMaxInputChars
	}
	return &Builder{maxInputChars: limit}
}

// Build validates req and renders its prompt.
func (b *Builder) Build(req domain.AdvisoryRequest) (Prompt, error) {
	if req == nil {
		return Prompt{}, domain.NewValidationError("request", "request is required", nil)
	}
	if err := req.Validate(); err != nil {
		return Prompt{}, err
	}

	schema, ok := SchemaFor(req.Kind())
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt schema for request kind %q", req.Kind())
	}

	var (
		tmpl      *template.Template
		data      map[string]interface{}
		truncated bool
	)
	capField := func(s string) string {
		out, cut := b.truncate(strings.TrimSpace(s))
		truncated = truncated || cut
		return out
	}

	switch q := req.(type) {
	case domain.ConditionQuery:
		tmpl = conditionTmpl
		data = map[string]interface{}{"Text": capField(q.Text)}
	case domain.ResearchQuery:
		tmpl = researchTmpl
		data = map[string]interface{}{
			"Specialties": capList(q.Specialties, capField),
			"Interests":   capList(q.Interests, capField),
			"Question":    capField(q.Question),
		}
	case domain.TrialSummaryQuery:
		tmpl = trialTmpl
		data = map[string]interface{}{
			"Title":       capField(q.Title),
			"Description": capField(q.Description),
		}
	default:
		return Prompt{}, fmt.Errorf("unsupported request type %T", req)
	}
	data["Directive"] = schema.Directive()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render %s prompt: %w", req.Kind(), err)
	}

	return Prompt{
		Kind:      req.Kind(),
		Text:      buf.String(),
		Schema:    schema,
		Truncated: truncated,
	}, nil
}

func (b *Builder) truncate(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= b.maxInputChars {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:b.maxInputChars]) + " " + TruncationMarker, true
}

func capList(values []string, capField func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, capField(v))
	}
	return out
}
