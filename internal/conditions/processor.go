// Package conditions identifies medical conditions in free text using a local
// vocabulary. It needs no model and backs the advisory fallbacks.
package conditions

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Confidence values reported by Identify.
const (
	MatchedConfidence   = 0.8
	UnmatchedConfidence = 0.3
)

// MaxSuggestions bounds Suggest.
const MaxSuggestions = 5

// MaxPrimaryRunes bounds a primary condition taken from the caller's text.
const MaxPrimaryRunes = 120

var vocabulary = []string{
	// cancer
	"Brain Cancer", "Lung Cancer", "Breast Cancer", "Prostate Cancer", "Colon Cancer",
	"Glioblastoma", "Glioma", "Melanoma", "Leukemia", "Lymphoma", "Sarcoma",
	// neurological
	"Alzheimer Disease", "Parkinson Disease", "Epilepsy", "Multiple Sclerosis", "Stroke", "Migraine",
	"ADHD", "Attention-Deficit/Hyperactivity Disorder (ADHD)", "Attention Deficit Hyperactivity Disorder",
	"Multiple System Atrophy", "Ductal Carcinoma in Situ", "DCIS",
	// cardiovascular and metabolic
	"Heart Disease", "Hypertension", "Diabetes", "High Blood Pressure", "Cardiac Disease",
	// other
	"Arthritis", "Asthma", "Depression", "Anxiety", "Obesity", "Kidney Disease",
	"Liver Disease", "Autoimmune Disease", "Fibromyalgia", "Chronic Pain",
	"Major Depressive Disorder", "Major Depressive Disorder (Depression)", "Treatment-Resistant Depression",
}

var synonyms = []struct{ term, condition string }{
	{"tumor", "Brain Cancer"},
	{"tumour", "Brain Cancer"},
	{"malignancy", "Brain Cancer"},
	{"carcinoma", "Brain Cancer"},
	{"oncology", "Brain Cancer"},
	{"brain tumor", "Brain Cancer"},
	{"brain tumour", "Brain Cancer"},
	{"gbm", "Glioblastoma"},
	{"heart attack", "Heart Disease"},
	{"cardiovascular", "Heart Disease"},
	{"high bp", "Hypertension"},
	{"mental health", "Depression"},
	{"ptsd", "Anxiety"},
	{"adhd", "ADHD"},
	{"attention deficit", "ADHD"},
	{"hyperactivity", "ADHD"},
	{"major depression", "Major Depressive Disorder"},
	{"mdd", "Major Depressive Disorder"},
	{"clinical depression", "Depression"},
	{"depressive disorder", "Major Depressive Disorder"},
	{"type 1 diabetes", "Diabetes"},
	{"type 2 diabetes", "Diabetes"},
	{"diabetic", "Diabetes"},
}

var specialtiesByCondition = map[string][]string{
	"Brain Cancer":                                    {"Oncology", "Neurology", "Neurosurgery"},
	"Lung Cancer":                                     {"Oncology", "Pulmonology"},
	"Breast Cancer":                                   {"Oncology", "Surgical Oncology"},
	"Prostate Cancer":                                 {"Oncology", "Urology"},
	"Colon Cancer":                                    {"Oncology", "Gastroenterology"},
	"Glioblastoma":                                    {"Oncology", "Neurology", "Neurosurgery"},
	"Glioma":                                          {"Oncology", "Neurology", "Neurosurgery"},
	"Melanoma":                                        {"Oncology", "Dermatology"},
	"Leukemia":                                        {"Hematology", "Oncology"},
	"Lymphoma":                                        {"Hematology", "Oncology"},
	"Sarcoma":                                         {"Oncology", "Orthopedics"},
	"Alzheimer Disease":                               {"Neurology", "Geriatrics"},
	"Parkinson Disease":                               {"Neurology"},
	"Epilepsy":                                        {"Neurology"},
	"Multiple Sclerosis":                              {"Neurology", "Immunology"},
	"Stroke":                                          {"Neurology", "Cardiology"},
	"Migraine":                                        {"Neurology"},
	"ADHD":                                            {"Psychiatry", "Pediatrics"},
	"Attention-Deficit/Hyperactivity Disorder (ADHD)": {"Psychiatry", "Pediatrics"},
	"Attention Deficit Hyperactivity Disorder":        {"Psychiatry", "Pediatrics"},
	"Multiple System Atrophy":                         {"Neurology"},
	"Ductal Carcinoma in Situ":                        {"Oncology", "Surgical Oncology"},
	"DCIS":                                            {"Oncology", "Surgical Oncology"},
	"Heart Disease":                                   {"Cardiology"},
	"Hypertension":                                    {"Cardiology", "Nephrology"},
	"Diabetes":                                        {"Endocrinology"},
	"High Blood Pressure":                             {"Cardiology", "Nephrology"},
	"Cardiac Disease":                                 {"Cardiology"},
	"Arthritis":                                       {"Rheumatology"},
	"Asthma":                                          {"Pulmonology", "Allergy and Immunology"},
	"Depression":                                      {"Psychiatry", "Psychology"},
	"Anxiety":                                         {"Psychiatry", "Psychology"},
	"Obesity":                                         {"Endocrinology", "Nutrition"},
	"Kidney Disease":                                  {"Nephrology"},
	"Liver Disease":                                   {"Hepatology", "Gastroenterology"},
	"Autoimmune Disease":                              {"Rheumatology", "Immunology"},
	"Fibromyalgia":                                    {"Rheumatology", "Pain Medicine"},
	"Chronic Pain":                                    {"Pain Medicine", "Neurology"},
	"Major Depressive Disorder":                       {"Psychiatry", "Psychology"},
	"Major Depressive Disorder (Depression)":          {"Psychiatry", "Psychology"},
	"Treatment-Resistant Depression":                  {"Psychiatry"},
}

// Specialties outside the condition map that the parser should still recognize.
var extraSpecialties = []string{
	"Radiology", "Radiation Oncology", "Pathology", "Genetics", "Internal Medicine",
	"Family Medicine", "Infectious Disease", "Ophthalmology", "Otolaryngology",
	"Physical Medicine and Rehabilitation", "Palliative Care", "Immunotherapy",
}

// Identification is the outcome of Identify.
type Identification struct {
	OriginalInput        string   `json:"originalInput"`
	IdentifiedConditions []string `json:"identifiedConditions"`
	PrimaryCondition     string   `json:"primaryCondition"`
	Confidence           float64  `json:"confidence"`
}

type term struct {
	name    string
	pattern *regexp.Regexp
}

// Processor matches free text against the condition vocabulary. It holds no
// mutable state and is safe for concurrent use.
type Processor struct {
	conditions  []term
	synonyms    []synonymTerm
	specialties []string
}

type synonymTerm struct {
	term
	condition string
}

var phrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)diagnosed with\s+(.+?)(?:\s*[,.;!?]|$)`),
	regexp.MustCompile(`(?i)suffering from\s+(.+?)(?:\s*[,.;!?]|$)`),
	regexp.MustCompile(`(?i)treatment for\s+(.+?)(?:\s*[,.;!?]|$)`),
	regexp.MustCompile(`(?i)\bhave\s+(.+?)(?:\s*[,.;!?]|$)`),
}

var keywordPattern = regexp.MustCompile(`(?i)([\p{L}\p{N}'\-]+\s+(?:cancer|disease|disorder|condition|syndrome))\b`)

// NewProcessor compiles the vocabulary.
func NewProcessor() *Processor {
	p := &Processor{}
	for _, c := range vocabulary {
		p.conditions = append(p.conditions, term{name: c, pattern: boundaryPattern(c)})
	}
	for _, s := range synonyms {
		p.synonyms = append(p.synonyms, synonymTerm{
			term:      term{name: s.term, pattern: boundaryPattern(s.term)},
			condition: s.condition,
		})
	}

	seen := map[string]bool{}
	for _, c := range vocabulary {
		for _, s := range specialtiesByCondition[c] {
			if !seen[s] {
				seen[s] = true
				p.specialties = append(p.specialties, s)
			}
		}
	}
	for _, s := range extraSpecialties {
		if !seen[s] {
			seen[s] = true
			p.specialties = append(p.specialties, s)
		}
	}
	return p
}

// boundaryPattern matches phrase case-insensitively when it is not part of a
// larger word.
func boundaryPattern(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(phrase) + `(?:$|[^\p{L}\p{N}])`)
}

// Identify finds vocabulary conditions and synonyms in input. When nothing
// matches, the primary condition is extracted from common phrasings or, as a
// last resort, the title-cased input itself.
func (p *Processor) Identify(input string) Identification {
	id := Identification{OriginalInput: input, IdentifiedConditions: []string{}}
	text := strings.TrimSpace(input)

	add := func(condition string) {
		for _, existing := range id.IdentifiedConditions {
			if existing == condition {
				return
			}
		}
		id.IdentifiedConditions = append(id.IdentifiedConditions, condition)
	}

	for _, c := range p.conditions {
		if c.pattern.MatchString(text) {
			add(c.name)
		}
	}
	for _, s := range p.synonyms {
		if s.pattern.MatchString(text) {
			add(s.condition)
		}
	}

	if len(id.IdentifiedConditions) > 0 {
		id.PrimaryCondition = id.IdentifiedConditions[0]
		id.Confidence = MatchedConfidence
		return id
	}

	id.Confidence = UnmatchedConfidence
	id.PrimaryCondition = capWords(titleCase(extractCondition(text)), MaxPrimaryRunes)
	return id
}

func extractCondition(text string) string {
	for _, p := range phrasePatterns {
		if m := p.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
			return m[1]
		}
	}
	if m := keywordPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// Suggest returns up to MaxSuggestions vocabulary entries that contain input or
// are contained in it.
func (p *Processor) Suggest(input string) []string {
	needle := strings.ToLower(strings.Join(strings.Fields(input), " "))
	if needle == "" {
		return []string{}
	}

	out := []string{}
	for _, c := range vocabulary {
		lc := strings.ToLower(c)
		if strings.Contains(lc, needle) || strings.Contains(needle, lc) {
			out = append(out, c)
			if len(out) == MaxSuggestions {
				break
			}
		}
	}
	return out
}

// SpecialtiesFor returns the clinical specialties that treat condition, or nil
// when the condition is not in the vocabulary.
func (p *Processor) SpecialtiesFor(condition string) []string {
	for _, c := range vocabulary {
		if strings.EqualFold(c, strings.TrimSpace(condition)) {
			return append([]string(nil), specialtiesByCondition[c]...)
		}
	}
	return nil
}

// KnownSpecialties lists every specialty the processor knows about.
func (p *Processor) KnownSpecialties() []string {
	return append([]string(nil), p.specialties...)
}

// capWords shortens s to at most n runes, cutting at a word boundary when one
// fits.
func capWords(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := string([]rune(s)[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
