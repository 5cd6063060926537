// Package reply extracts the candidate translations from a model response.
//
// Models are asked to answer with a JSON object inside a fenced code block.
// Extraction is deliberately narrow: the payload is taken from the first
// fenced segment starting at its first '{'. Anything more lenient has masked
// prompt regressions in the past.
package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Candidates is the number of translations a reply must contain.
const Candidates = 4

const fence = "```"

// FormatError reports a reply that does not have the expected shape.
type FormatError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reply: %s: %v", e.Reason, e.Err)
	}
	return "reply: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// ErrFormat matches every *FormatError via errors.Is.
var ErrFormat = errors.New("reply: unexpected format")

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Parse returns exactly [Candidates] translations from raw.
func Parse(raw string) ([]string, error) {
	payload, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	return Decode(raw, payload)
}

// Extract returns the JSON payload of raw. When raw contains a code fence the
// payload is the text between the first and second fence, starting at the
// first '{'. Otherwise raw itself is the payload.
func Extract(raw string) (string, error) {
	if !strings.Contains(raw, fence) {
		return raw, nil
	}
	parts := strings.SplitN(raw, fence, 3)
	segment := parts[1]
	i := strings.IndexByte(segment, '{')
	if i < 0 {
		return "", &FormatError{Raw: raw, Reason: "no JSON object inside code block"}
	}
	return segment[i:], nil
}

type payloadShape struct {
	Translations json.RawMessage `json:"translations"`
}

// Decode parses payload as a JSON object whose "translations" key holds a list
// of exactly [Candidates] strings. raw is carried into any FormatError.
func Decode(raw, payload string) ([]string, error) {
	var p payloadShape
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, &FormatError{Raw: raw, Reason: "invalid JSON", Err: err}
	}
	if len(p.Translations) == 0 || string(p.Translations) == "null" {
		return nil, &FormatError{Raw: raw, Reason: `missing "translations" key`}
	}
	var list []string
	if err := json.Unmarshal(p.Translations, &list); err != nil {
		return nil, &FormatError{Raw: raw, Reason: `"translations" is not a list of strings`, Err: err}
	}
	if len(list) != Candidates {
		return nil, &FormatError{Raw: raw, Reason: fmt.Sprintf("expected %d translations, got %d", Candidates, len(list))}
	}
	return list, nil
}
