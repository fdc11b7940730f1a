package prompt

import (
	"strings"

	"github.com/curalink-advisory/internal/domain"
)

// Result field names. They match the JSON names of the result types and are
// what ResultMeta.Missing reports.
const (
	FieldPrimaryCondition      = "primaryCondition"
	FieldPossibleCauses        = "possibleCauses"
	FieldSuggestedSpecialties  = "suggestedSpecialties"
	FieldConfidence            = "confidence"
	FieldSuggestions           = "suggestions"
	FieldRationale             = "rationale"
	FieldSummary               = "summary"
	FieldEligibilityHighlights = "eligibilityHighlights"
)

// Section is one labeled block the model is asked to emit.
type Section struct {
	Label    string
	Field    string
	List     bool
	Required bool
	Hint     string
}

// Schema is the output format requested for one request kind.
type Schema struct {
	Kind     domain.RequestKind
	Sections []Section
}

var schemas = map[domain.RequestKind]Schema{
	domain.KindCondition: {
		Kind: domain.KindCondition,
		Sections: []Section{
			{Label: "PRIMARY CONDITION", Field: FieldPrimaryCondition, Required: true,
				Hint: "the single most likely condition, as a short medical name"},
			{Label: "POSSIBLE CAUSES", Field: FieldPossibleCauses, List: true, Required: true,
				Hint: "one cause per line"},
			{Label: "SUGGESTED SPECIALTIES", Field: FieldSuggestedSpecialties, List: true, Required: true,
				Hint: "one clinical specialty per line"},
			{Label: "CONFIDENCE", Field: FieldConfidence,
				Hint: "a number between 0 and 1"},
		},
	},
	domain.KindResearch: {
		Kind: domain.KindResearch,
		Sections: []Section{
			{Label: "COLLABORATIONS", Field: FieldSuggestions, List: true, Required: true,
				Hint: "one per line as <collaborator area>: <rationale>"},
		},
	},
	domain.KindTrialSummary: {
		Kind: domain.KindTrialSummary,
		Sections: []Section{
			{Label: "SUMMARY", Field: FieldSummary, Required: true,
				Hint: "two or three plain-language sentences"},
			{Label: "ELIGIBILITY HIGHLIGHTS", Field: FieldEligibilityHighlights, List: true, Required: true,
				Hint: "one criterion per line"},
		},
	},
}

// SchemaFor returns the output schema for kind.
func SchemaFor(kind domain.RequestKind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Section returns the section that populates field.
func (s Schema) Section(field string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Field == field {
			return sec, true
		}
	}
	return Section{}, false
}

// Directive renders the strict output-format instruction appended to each prompt.
func (s Schema) Directive() string {
	var b strings.Builder
	b.WriteString("Respond using exactly these labeled sections, each label at the start of its own line:\n")
	for _, sec := range s.Sections {
		b.WriteString(sec.Label)
		b.WriteString(": ")
		b.WriteString(sec.Hint)
		if sec.List {
			b.WriteString(", each line starting with \"- \"")
		}
		if !sec.Required {
			b.WriteString(" (optional)")
		}
		b.WriteString("\n")
	}
	b.WriteString("Do not add any other sections or commentary.")
	return b.String()
}
