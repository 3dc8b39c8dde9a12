package answer

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind tells which shape an Answer carries.
type Kind int

const (
	KindMissing Kind = iota
	KindScalar
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSet:
		return "set"
	default:
		return "missing"
	}
}

// Answer is either a single text value or an unordered collection of text values.
// The zero value is a missing answer. The shape is decided once, when the JSON
// document is decoded, so comparison never has to sniff the value again.
type Answer struct {
	kind  Kind
	text  string
	items []string
}

func Scalar(s string) Answer { return Answer{kind: KindScalar, text: s} }

func Set(items ...string) Answer {
	cp := make([]string, len(items))
	copy(cp, items)
	return Answer{kind: KindSet, items: cp}
}

func (a Answer) Kind() Kind      { return a.kind }
func (a Answer) IsMissing() bool { return a.kind == KindMissing }

// Items returns a copy of the set members. Scalars and missing answers have none.
func (a Answer) Items() []string {
	if a.kind != KindSet {
		return nil
	}
	cp := make([]string, len(a.items))
	copy(cp, a.items)
	return cp
}

// Text renders the answer as one string. Sets are joined with commas.
func (a Answer) Text() string {
	switch a.kind {
	case KindScalar:
		return a.text
	case KindSet:
		return strings.Join(a.items, ",")
	default:
		return ""
	}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case KindScalar:
		return json.Marshal(a.text)
	case KindSet:
		if a.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts strings, numbers, booleans and arrays. Non-string scalars
// keep their literal JSON text ("5", "true"); array members are coerced the same way.
func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Answer{}
		return nil
	}
	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, r := range raw {
			s, err := literalText(r)
			if err != nil {
				return err
			}
			items = append(items, s)
		}
		*a = Answer{kind: KindSet, items: items}
		return nil
	}
	s, err := literalText(b)
	if err != nil {
		return err
	}
	*a = Answer{kind: KindScalar, text: s}
	return nil
}

func literalText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "", nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}
