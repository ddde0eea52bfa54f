package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var jsonNull = []byte("null")

// NullInt is an optional integer that decodes from a JSON number, a numeric
// string, an empty string or null. Ranks read from CSV arrive as strings.
type NullInt struct {
	Value int
	Valid bool
}

// IntOf returns a present NullInt.
func IntOf(v int) NullInt { return NullInt{Value: v, Valid: true} }

// NullIntFromPtr converts a nullable pointer.
func NullIntFromPtr(p *int) NullInt {
	if p == nil {
		return NullInt{}
	}
	return IntOf(*p)
}

// Ptr returns nil when the value is absent.
func (n NullInt) Ptr() *int {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, jsonNull) {
		*n = NullInt{}
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return eris.Wrap(ErrInvalidNumber, err.Error())
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*n = NullInt{}
			return nil
		}
	}
	if v, err := strconv.Atoi(raw); err == nil {
		*n = IntOf(v)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return eris.Wrapf(ErrInvalidNumber, "%q", raw)
	}
	*n = IntOf(int(f))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullInt) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return jsonNull, nil
	}
	return strconv.AppendInt(nil, int64(n.Value), 10), nil
}

// NullString is an optional label. Empty strings decode as absent.
type NullString struct {
	Value string
	Valid bool
}

// StringOf returns a present NullString, or absent for "".
func StringOf(s string) NullString {
	if s == "" {
		return NullString{}
	}
	return NullString{Value: s, Valid: true}
}

// NullStringFromPtr converts a nullable pointer.
func NullStringFromPtr(p *string) NullString {
	if p == nil {
		return NullString{}
	}
	return StringOf(*p)
}

// Ptr returns nil when the value is absent.
func (n NullString) Ptr() *string {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*n = NullString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "decode label")
	}
	*n = StringOf(s)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return jsonNull, nil
	}
	return json.Marshal(n.Value)
}
