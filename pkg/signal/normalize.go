package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned by ParsePayload when the JSON document is valid
// but is not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Classes is the waybar "class" field, which may be a single string or a
// list of strings on the wire.
type Classes []string

// UnmarshalJSON accepts a string, a list of strings or null. Any other shape
// degrades to an empty list rather than failing the whole payload.
func (c *Classes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Classes{s}
	case data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(Classes, 0, len(raw))
		for _, item := range raw {
			var s string
			if json.Unmarshal(item, &s) == nil {
				out = append(out, s)
			}
		}
		*c = out
	default:
		*c = nil
	}
	return nil
}

// Payload is the typed form of the script output contract
// {class?: string|string[], text?: string, tooltip?: string}.
type Payload struct {
	Class   Classes `json:"class,omitempty"`
	Text    *string `json:"text,omitempty"`
	Tooltip *string `json:"tooltip,omitempty"`
}

// FirstClass returns the first class tag, or "" when there is none.
func (p Payload) FirstClass() string {
	if len(p.Class) == 0 {
		return ""
	}
	return p.Class[0]
}

// ParsePayload decodes one script output document. Fields with the wrong
// type are dropped individually; only non-object or invalid JSON is an error.
func ParsePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("parse payload: empty input")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if !json.Valid(data) {
			return Payload{}, fmt.Errorf("parse payload: %w", err)
		}
		return Payload{}, ErrNotObject
	}
	if fields == nil {
		// literal null
		return Payload{}, ErrNotObject
	}

	var p Payload
	if raw, ok := fields["class"]; ok {
		_ = p.Class.UnmarshalJSON(raw)
	}
	if raw, ok := fields["text"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			p.Text = &s
		}
	}
	if raw, ok := fields["tooltip"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			p.Tooltip = &s
		}
	}
	return p, nil
}

// Options controls Normalize.
type Options struct {
	// Severity is copied verbatim; it is never inferred from the payload.
	Severity Severity
}

// Normalize converts a parsed payload into a Signal. It performs no I/O and
// cannot fail: missing fields fall back to "unknown", "" and no icon. An
// explicit empty first class is kept as "".
func Normalize(p Payload, opts Options) Signal {
	category := "unknown"
	if len(p.Class) > 0 {
		category = p.Class[0]
	}

	s := Signal{
		Severity: opts.Severity,
		Category: category,
		Raw: map[string]any{
			"classes": []string(p.Class),
		},
	}
	if p.Text != nil {
		s.Icon = *p.Text
	}
	if p.Tooltip != nil {
		s.Summary = *p.Tooltip
	}
	return s
}

// NormalizeJSON parses and normalizes in one step. It returns nil and the
// parse error when the document is unusable.
func NormalizeJSON(data []byte, opts Options) (*Signal, error) {
	p, err := ParsePayload(data)
	if err != nil {
		return nil, err
	}
	s := Normalize(p, opts)
	return &s, nil
}
