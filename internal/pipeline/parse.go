package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talentforge/assessor/internal/domain"
)

// Tolerant parsing of model output. Models wrap JSON in markdown fences,
// capitalize keys, return a bare array where an object was asked for, or a
// single object where an array was asked for. Each parser normalizes these
// known variants in a defined order before strict decoding; anything still
// malformed afterwards fails with ErrSchemaInvalid.

// evidenceItem is one extracted quote in the phase-1 response.
type evidenceItem struct {
	KeyBehavior string `json:"key_behavior"`
	Quote       string `json:"quote"`
	Reasoning   string `json:"reasoning"`
}

// behaviorVerdict is one judged key behavior in the phase-2 response.
type behaviorVerdict struct {
	KeyBehavior string   `json:"key_behavior"`
	Fulfilled   bool     `json:"fulfilled"`
	Explanation string   `json:"explanation"`
	Quotes      []string `json:"quotes"`
}

// narrativeResult is the phase-2 narrative response.
type narrativeResult struct {
	Explanation     string                 `json:"explanation"`
	Recommendations recommendationsPayload `json:"recommendations"`
}

type recommendationsPayload struct {
	PersonalDevelopment stringList `json:"personal_development"`
	Assignment          stringList `json:"assignment"`
	Training            stringList `json:"training"`
}

// summaryResult is the phase-3 draft/critique response shape.
type summaryResult struct {
	Overview        string `json:"overview"`
	Strengths       string `json:"strengths"`
	Weaknesses      string `json:"weaknesses"`
	Recommendations string `json:"recommendations"`
}

// stringList decodes both a JSON array of strings and a bare string.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*s = arr
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = []string{one}
		}
		return nil
	}
	return fmt.Errorf("expected string or array of strings")
}

// stripFences removes markdown code fences and any prose around the
// outermost JSON value.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	objStart := strings.IndexAny(s, "{[")
	if objStart < 0 {
		return s
	}
	var closer byte = '}'
	if s[objStart] == '[' {
		closer = ']'
	}
	objEnd := strings.LastIndexByte(s, closer)
	if objEnd <= objStart {
		return s
	}
	return s[objStart : objEnd+1]
}

// canonicalKeys maps squashed key spellings to the canonical snake_case the
// decode structs expect. Squashing lowercases and drops separators, so
// "KeyBehavior", "key-behavior" and "Key_Behavior" all land on key_behavior.
var canonicalKeys = map[string]string{
	"evidence":            "evidence",
	"keybehavior":         "key_behavior",
	"quote":               "quote",
	"quotes":              "quotes",
	"reasoning":           "reasoning",
	"behaviors":           "behaviors",
	"keybehaviors":        "behaviors",
	"fulfilled":           "fulfilled",
	"explanation":         "explanation",
	"recommendations":     "recommendations",
	"personaldevelopment": "personal_development",
	"assignment":          "assignment",
	"training":            "training",
	"overview":            "overview",
	"strengths":           "strengths",
	"weaknesses":          "weaknesses",
}

func squashKey(k string) string {
	k = strings.ToLower(k)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, k)
}

// normalizeKeys rewrites object keys recursively to their canonical form.
func normalizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			key := strings.ToLower(k)
			if canon, ok := canonicalKeys[squashKey(k)]; ok {
				key = canon
			}
			out[key] = normalizeKeys(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeKeys(val)
		}
		return t
	default:
		return v
	}
}

// normalizeJSON parses raw leniently and re-marshals it with canonical keys.
func normalizeJSON(raw string) ([]byte, error) {
	var v any
	if err := json.Unmarshal([]byte(stripFences(raw)), &v); err != nil {
		return nil, fmt.Errorf("op=pipeline.parse: %w: %v", domain.ErrSchemaInvalid, err)
	}
	return json.Marshal(normalizeKeys(v))
}

// parseEvidence decodes a phase-1 response. Accepts {"evidence":[...]},
// a bare top-level array, and a single bare evidence object.
func parseEvidence(raw string) ([]evidenceItem, error) {
	b, err := normalizeJSON(raw)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Evidence json.RawMessage `json:"evidence"`
	}
	payload := json.RawMessage(b)
	if err := json.Unmarshal(b, &wrapped); err == nil && len(wrapped.Evidence) > 0 {
		payload = wrapped.Evidence
	}

	var items []evidenceItem
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}
	var one evidenceItem
	if err := json.Unmarshal(payload, &one); err == nil && one.Quote != "" {
		return []evidenceItem{one}, nil
	}
	return nil, fmt.Errorf("op=pipeline.parse_evidence: %w: unrecognized shape", domain.ErrSchemaInvalid)
}

// parseVerdicts decodes a phase-2 judgment response. Accepts
// {"behaviors":[...]} and a bare top-level array.
func parseVerdicts(raw string) ([]behaviorVerdict, error) {
	b, err := normalizeJSON(raw)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Behaviors json.RawMessage `json:"behaviors"`
	}
	payload := json.RawMessage(b)
	if err := json.Unmarshal(b, &wrapped); err == nil && len(wrapped.Behaviors) > 0 {
		payload = wrapped.Behaviors
	}

	var verdicts []behaviorVerdict
	if err := json.Unmarshal(payload, &verdicts); err != nil {
		return nil, fmt.Errorf("op=pipeline.parse_verdicts: %w: %v", domain.ErrSchemaInvalid, err)
	}
	return verdicts, nil
}

// parseNarrative decodes a phase-2 narrative response.
func parseNarrative(raw string) (narrativeResult, error) {
	b, err := normalizeJSON(raw)
	if err != nil {
		return narrativeResult{}, err
	}
	var out narrativeResult
	if err := json.Unmarshal(b, &out); err != nil {
		return narrativeResult{}, fmt.Errorf("op=pipeline.parse_narrative: %w: %v", domain.ErrSchemaInvalid, err)
	}
	if out.Explanation == "" {
		return narrativeResult{}, fmt.Errorf("op=pipeline.parse_narrative: %w: missing explanation", domain.ErrSchemaInvalid)
	}
	return out, nil
}

// parseSummary decodes a phase-3 draft or critique response.
func parseSummary(raw string) (summaryResult, error) {
	b, err := normalizeJSON(raw)
	if err != nil {
		return summaryResult{}, err
	}
	var out summaryResult
	if err := json.Unmarshal(b, &out); err != nil {
		return summaryResult{}, fmt.Errorf("op=pipeline.parse_summary: %w: %v", domain.ErrSchemaInvalid, err)
	}
	if out.Overview == "" {
		return summaryResult{}, fmt.Errorf("op=pipeline.parse_summary: %w: missing overview", domain.ErrSchemaInvalid)
	}
	return out, nil
}
