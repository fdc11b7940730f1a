package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/curalink-advisory/internal/prompt"
)

var (
	bulletPrefix = regexp.MustCompile(`^(?:[-*•·+]|\d{1,2}[.)])\s+`)
	inlineBullet = regexp.MustCompile(`\s+[•·]\s+`)
)

// document is a model reply split into labeled sections and the free text
// that sits outside any recognized label.
type document struct {
	sections map[string][]string
	found    map[string]bool
	// free holds unlabeled lines; "" marks a paragraph break.
	free []string
	// lead is the number of free lines ahead of the first label.
	lead int
	// stray is set when prose after a blank line closed a labeled section.
	stray bool
}

// cleanLine strips markdown emphasis, headings, quotes and one bullet marker.
func cleanLine(line string) string {
	s := strings.TrimSpace(line)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.TrimSpace(strings.TrimLeft(s, "#> "))
	s = bulletPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// isBullet reports whether line starts with a list marker once emphasis and
// heading markers are removed.
func isBullet(line string) bool {
	s := strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
	s = strings.TrimSpace(strings.TrimLeft(s, "#> "))
	return bulletPrefix.MatchString(s)
}

// matchLabel reports whether cleaned starts with one of the schema labels and
// returns the section and the inline content after the colon.
func matchLabel(cleaned string, sections []prompt.Section) (prompt.Section, string, bool) {
	for _, sec := range sections {
		n := len(sec.Label)
		if len(cleaned) < n || !strings.EqualFold(cleaned[:n], sec.Label) {
			continue
		}
		rest := strings.TrimSpace(cleaned[n:])
		if rest == "" {
			return sec, "", true
		}
		if rest[0] == ':' {
			return sec, strings.TrimSpace(rest[1:]), true
		}
	}
	return prompt.Section{}, "", false
}

func split(raw string, schema prompt.Schema) document {
	// longest labels first so a label never shadows a longer one sharing its prefix
	sections := append([]prompt.Section(nil), schema.Sections...)
	sort.SliceStable(sections, func(i, j int) bool {
		return len(sections[i].Label) > len(sections[j].Label)
	})

	doc := document{sections: map[string][]string{}, found: map[string]bool{}}
	var (
		current string
		list    bool
		gap     bool
		labeled bool
	)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		cleaned := cleanLine(line)
		if sec, inline, ok := matchLabel(cleaned, sections); ok {
			if !labeled {
				labeled, doc.lead = true, len(doc.free)
			}
			current, list, gap = sec.Field, sec.List, false
			doc.found[current] = true
			if inline != "" {
				doc.sections[current] = append(doc.sections[current], inline)
			}
			continue
		}

		if current != "" {
			if cleaned == "" {
				gap = len(doc.sections[current]) > 0
				continue
			}
			// A paragraph break ends a section unless a list continues after it.
			if !gap || (list && isBullet(line)) {
				gap = false
				doc.sections[current] = append(doc.sections[current], cleaned)
				continue
			}
			current, gap = "", false
			doc.stray = true
			doc.free = append(doc.free, "")
		}
		doc.free = append(doc.free, cleaned)
	}
	if !labeled {
		doc.lead = len(doc.free)
	}
	return doc
}

// has reports whether field was labeled and carries content.
func (d document) has(field string) bool {
	return d.found[field] && len(d.sections[field]) > 0
}

// paragraphs groups the free lines ahead of the first label on blank-line
// boundaries. Prose trailing a closed section never leads a result.
func (d document) paragraphs() [][]string {
	var (
		out  [][]string
		curr []string
	)
	for _, line := range d.free[:d.lead] {
		if line == "" {
			if len(curr) > 0 {
				out = append(out, curr)
				curr = nil
			}
			continue
		}
		curr = append(curr, line)
	}
	if len(curr) > 0 {
		out = append(out, curr)
	}
	return out
}

// listItems splits lines on line breaks and inline bullet markers.
func listItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		for _, part := range inlineBullet.Split(line, -1) {
			if item := strings.TrimSpace(cleanLine(part)); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}

// sectionList turns a labeled list section into items. A single line holding a
// comma or semicolon separated list is split on the separators.
func sectionList(lines []string) []string {
	items := listItems(lines)
	if len(items) == 1 && strings.ContainsAny(items[0], ",;") {
		var out []string
		for _, part := range strings.FieldsFunc(items[0], func(r rune) bool { return r == ',' || r == ';' }) {
			if p := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ".")); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return items
}

// firstSentence returns s up to its first sentence break.
func firstSentence(s string) string {
	for _, sep := range []string{". ", "? ", "! "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(strings.TrimRight(s, "."))
}
