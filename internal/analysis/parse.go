package analysis

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ModelAnswer is the structured answer a model returns for one cell.
type ModelAnswer struct {
	Result             string `json:"result"`
	Explanation        string `json:"explanation"`
	SupportingEvidence string `json:"supporting_evidence"`
	Raw                string `json:"-"`
}

// Affirmative reports whether the answer scores.
func (a ModelAnswer) Affirmative() bool {
	return strings.ToUpper(strings.TrimSpace(a.Result)) == "YES"
}

var requiredKeys = []string{"result", "explanation", "supporting_evidence"}

// ParseAnswer extracts the JSON object from raw model text. Markdown fences
// and surrounding prose are ignored. Evidence given as an array is kept as
// its JSON encoding. Anything else is a *MalformedModelOutputError; the
// result is never defaulted.
func ParseAnswer(raw string) (*ModelAnswer, error) {
	body := stripFences(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, &MalformedModelOutputError{Raw: raw, Reason: "no JSON object"}
	}

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(body[start : end+1]))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, &MalformedModelOutputError{Raw: raw, Reason: "invalid JSON", Err: eris.Wrap(err, "analysis: decode answer")}
	}
	for _, k := range requiredKeys {
		if _, ok := fields[k]; !ok {
			return nil, &MalformedModelOutputError{Raw: raw, Reason: "missing key " + k}
		}
	}

	ans := &ModelAnswer{Raw: raw}
	var err error
	if ans.Result, err = stringField(fields["result"], false); err != nil {
		return nil, &MalformedModelOutputError{Raw: raw, Reason: "result", Err: err}
	}
	if strings.TrimSpace(ans.Result) == "" {
		return nil, &MalformedModelOutputError{Raw: raw, Reason: "empty result"}
	}
	if ans.Explanation, err = stringField(fields["explanation"], false); err != nil {
		return nil, &MalformedModelOutputError{Raw: raw, Reason: "explanation", Err: err}
	}
	if ans.SupportingEvidence, err = stringField(fields["supporting_evidence"], true); err != nil {
		return nil, &MalformedModelOutputError{Raw: raw, Reason: "supporting_evidence", Err: err}
	}
	return ans, nil
}

// stringField decodes a JSON string. Null becomes "". When allowArray is
// set, arrays and objects are returned as compact JSON text.
func stringField(v json.RawMessage, allowArray bool) (string, error) {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", eris.Wrap(err, "analysis: decode string")
		}
		return s, nil
	case '[', '{':
		if !allowArray {
			return "", eris.New("analysis: expected a string")
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", eris.Wrap(err, "analysis: compact evidence")
		}
		return buf.String(), nil
	default:
		// Bare numbers and booleans keep their literal text.
		return string(trimmed), nil
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
