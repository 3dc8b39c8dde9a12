package answer

import (
	"fmt"
	"strings"
)

// SectionType partitions a template's content and answer key.
type SectionType string

const (
	Listening SectionType = "LISTENING"
	Reading   SectionType = "READING"
	Writing   SectionType = "WRITING"
)

// SectionTypes lists every section type in template order.
var SectionTypes = []SectionType{Listening, Reading, Writing}

// ParseSectionType is case-insensitive: "listening" and "LISTENING" are the same section.
func ParseSectionType(s string) (SectionType, error) {
	t := SectionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown section type %q", s)
	}
	return t, nil
}

func (t SectionType) Valid() bool {
	switch t {
	case Listening, Reading, Writing:
		return true
	}
	return false
}

// Gradable reports whether answers of this section are scored automatically.
// Writing is recorded but never scored.
func (t SectionType) Gradable() bool {
	return t == Listening || t == Reading
}

// Sheet maps question keys to the answer given (or expected) for one section.
type Sheet map[string]Answer

func (s Sheet) Clone() Sheet {
	out := make(Sheet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Sheets is the per-section answer document stored on an attempt, and also the
// shape of a template's answer key.
type Sheets map[SectionType]Sheet

// Section returns the sheet for t, or an empty sheet when absent.
func (s Sheets) Section(t SectionType) Sheet {
	if sh, ok := s[t]; ok && sh != nil {
		return sh
	}
	return Sheet{}
}

// Validate rejects section keys outside the fixed enumeration.
func (s Sheets) Validate() error {
	for t := range s {
		if !t.Valid() {
			return fmt.Errorf("unknown section type %q", string(t))
		}
	}
	return nil
}

// Normalize upper-cases section keys so "reading" and "READING" land on one entry.
func (s Sheets) Normalize() Sheets {
	out := make(Sheets, len(s))
	for t, sh := range s {
		out[SectionType(strings.ToUpper(strings.TrimSpace(string(t))))] = sh
	}
	return out
}
