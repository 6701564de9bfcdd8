// Package extract recovers the single JSON object embedded in a model reply.
//
// Replies are expected to hold exactly one JSON object, but models routinely
// wrap it in markdown fences or surround it with prose. Extraction trims the
// reply, removes every fence marker, and when the remainder is not already a
// clean object it takes the balanced span that starts at the first '{'.
// Braces inside JSON strings, including escaped quotes, do not count toward
// the balance.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"resumeforge/internal/errors"
)

// Only backtick fences are stripped. Tilde fences (~~~) are left in place and
// the brace scan skips past them, so a "~~~" inside a string value survives.
var (
	// a fence with an optional info string that ends its line; \w covers any case
	fenceLine = regexp.MustCompile("```[\\w.+-]*[ \\t]*\\r?\\n")
	// a fence tagged json written inline, e.g. "```json{" or "```JSON{"
	fenceJSON = regexp.MustCompile("(?i)```json")
)

const fence = "```"

// Extract returns the structured payload held in raw. Numbers are kept as
// json.Number so repeated runs over the same reply yield identical values.
func Extract(raw string) (map[string]any, error) {
	text := StripFences(strings.TrimSpace(raw))

	candidate := text
	if !isCleanObject(text) {
		span, err := FirstObject(text)
		if err != nil {
			return nil, errors.NewExtractionError(errors.ErrCodeExtractionFailed,
				err.Error(), raw, nil)
		}
		candidate = span
	}

	payload, err := decodeObject(candidate)
	if err != nil {
		return nil, errors.NewExtractionError(errors.ErrCodeExtractionFailed,
			"reply does not contain a well-formed JSON object", raw, err)
	}
	return payload, nil
}

// StripFences removes markdown fence markers, tagged or bare, wherever they occur.
func StripFences(text string) string {
	if !strings.Contains(text, fence) {
		return text
	}
	text = fenceLine.ReplaceAllString(text, "")
	text = fenceJSON.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, fence, "")
	return strings.TrimSpace(text)
}

// FirstObject returns the span from the first '{' to the brace that closes it.
func FirstObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("reply contains no JSON object")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("reply contains an unbalanced JSON object")
}

func isCleanObject(text string) bool {
	return strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") && json.Valid([]byte(text))
}

func decodeObject(candidate string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("JSON value is not an object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return payload, nil
}

// Compact renders a payload as canonical JSON, used when logging what was extracted.
func Compact(payload map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
