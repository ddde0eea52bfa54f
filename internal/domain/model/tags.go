package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

const tagSeparator = ","

// SourceTags is the open set of preferred evidence sources. It is stored as
// a comma-joined string and accepted from clients as either form.
type SourceTags []string

// ParseSourceTags splits a stored tag string, dropping blanks.
func ParseSourceTags(s string) SourceTags {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, tagSeparator)
	tags := make(SourceTags, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// String returns the stored form. Order is kept as submitted.
func (t SourceTags) String() string {
	return strings.Join(t, tagSeparator)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *SourceTags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, jsonNull):
		*t = nil
		return nil
	case len(b) > 0 && b[0] == '[':
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return eris.Wrap(ErrInvalidTags, err.Error())
		}
		*t = ParseSourceTags(strings.Join(list, tagSeparator))
		return nil
	default:
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(ErrInvalidTags, err.Error())
		}
		*t = ParseSourceTags(s)
		return nil
	}
}

// MarshalJSON renders the comma-joined form.
func (t SourceTags) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
