// Package decode extracts known fields from loosely-specified backend
// responses and formats response text for display.
package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Analysis id keys, in lookup order. The backend serializes the id under
// either spelling; no other key is accepted.
const (
	KeyAnalysisIDSnake = "analysis_id"
	KeyAnalysisIDCamel = "analysisId"
)

const maxRawInError = 512

// MalformedResponse is a 2xx response whose body lacks the expected field.
type MalformedResponse struct {
	Raw    string
	Reason string
}

func (e *MalformedResponse) Error() string {
	raw := e.Raw
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError] + "..."
	}
	return fmt.Sprintf("malformed response: %s: %s", e.Reason, raw)
}

// ExtractAnalysisID reads a positive integer id from a JSON object body,
// trying analysis_id first and analysisId second.
func ExtractAnalysisID(raw []byte) (int64, error) {
	fields, err := object(raw)
	if err != nil {
		return 0, err
	}
	for _, key := range []string{KeyAnalysisIDSnake, KeyAnalysisIDCamel} {
		val, ok := fields[key]
		if !ok {
			continue
		}
		if id, ok := parseID(val); ok {
			return id, nil
		}
	}
	return 0, &MalformedResponse{Raw: string(raw), Reason: "no integer analysis_id or analysisId"}
}

// ExtractString returns a non-empty string field from a JSON object body.
func ExtractString(raw []byte, key string) (string, error) {
	fields, err := object(raw)
	if err != nil {
		return "", err
	}
	val, ok := fields[key]
	if !ok {
		return "", &MalformedResponse{Raw: string(raw), Reason: "missing " + key}
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil || s == "" {
		return "", &MalformedResponse{Raw: string(raw), Reason: key + " is not a non-empty string"}
	}
	return s, nil
}

// PrettyPrint re-indents JSON text with two spaces. Text that is not JSON is
// returned unchanged.
func PrettyPrint(text string) string {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return text
	}
	return buf.String()
}

func object(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &MalformedResponse{Raw: string(raw), Reason: "body is not a JSON object"}
	}
	return fields, nil
}

// parseID accepts JSON integers and decimal strings holding an integer.
func parseID(val json.RawMessage) (int64, bool) {
	text := strings.TrimSpace(string(val))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(val, &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
