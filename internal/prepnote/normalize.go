// Package prepnote owns the editable SOAP note draft that is seeded from a
// booking's prep summary and exported as one combined note.
package prepnote

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wolfman30/previsit/internal/scheduling"
)

// Section names one of the four SOAP sections.
type Section string

const (
	Subjective Section = "subjective"
	Objective  Section = "objective"
	Assessment Section = "assessment"
	Plan       Section = "plan"
)

// Sections lists the SOAP sections in note order.
var Sections = []Section{Subjective, Objective, Assessment, Plan}

// ParseSection accepts a section name in any case.
func ParseSection(raw string) (Section, bool) {
	s := Section(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Sections {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// Letter is the one-letter code used in the combined note.
func (s Section) Letter() string {
	switch s {
	case Subjective:
		return "S"
	case Objective:
		return "O"
	case Assessment:
		return "A"
	case Plan:
		return "P"
	}
	return ""
}

// Label is the heading used when rendering a section, e.g. "S – Subjective".
func (s Section) Label() string {
	name := string(s)
	if name == "" {
		return ""
	}
	return s.Letter() + " – " + strings.ToUpper(name[:1]) + name[1:]
}

// Draft is the locally editable note text.
type Draft struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// Get returns the text of one section.
func (d Draft) Get(s Section) string {
	switch s {
	case Subjective:
		return d.Subjective
	case Objective:
		return d.Objective
	case Assessment:
		return d.Assessment
	case Plan:
		return d.Plan
	}
	return ""
}

// Set replaces the text of one section.
func (d *Draft) Set(s Section, text string) {
	switch s {
	case Subjective:
		d.Subjective = text
	case Objective:
		d.Objective = text
	case Assessment:
		d.Assessment = text
	case Plan:
		d.Plan = text
	}
}

// IsEmpty reports whether every section is blank after trimming.
func (d Draft) IsEmpty() bool {
	for _, s := range Sections {
		if strings.TrimSpace(d.Get(s)) != "" {
			return false
		}
	}
	return true
}

// NormalizeSection turns one template fragment into editable text: a list joins
// its lines with "\n", a string passes through, null or absent is "", and any
// other JSON value is kept as its literal text.
func NormalizeSection(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			lines := make([]string, 0, len(items))
			for _, item := range items {
				lines = append(lines, listItem(item))
			}
			return strings.Join(lines, "\n")
		}
	}
	return string(trimmed)
}

func listItem(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// DraftFromTemplate seeds all four sections from a note template. A nil template yields an empty draft.
func DraftFromTemplate(tmpl *scheduling.NoteTemplate) Draft {
	if tmpl == nil {
		return Draft{}
	}
	return Draft{
		Subjective: NormalizeSection(tmpl.Subjective),
		Objective:  NormalizeSection(tmpl.Objective),
		Assessment: NormalizeSection(tmpl.Assessment),
		Plan:       NormalizeSection(tmpl.Plan),
	}
}

// Combine builds the export text: "<Letter>: <trimmed text>" per non-empty
// section in S, O, A, P order, separated by a blank line.
func Combine(d Draft) string {
	parts := make([]string, 0, len(Sections))
	for _, s := range Sections {
		text := strings.TrimSpace(d.Get(s))
		if text == "" {
			continue
		}
		parts = append(parts, s.Letter()+": "+text)
	}
	return strings.Join(parts, "\n\n")
}
