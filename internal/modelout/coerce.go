package modelout

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abhisek/redpen/internal/ledger"
)

// Step is one labelled segment of the step-split output.
type Step struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// listKeys are the object keys under which a model may wrap a finding list.
var listKeys = []string{"errors", "findings", "items", "results"}

// Findings coerces error-scan output into findings. It returns false when the
// output held no finding list; the caller then works with an empty list.
// Every field has a default: missing names become "Error N", statuses other
// than "yes" become "no", and non-string values are rendered as compact JSON.
func Findings(text string) ([]ledger.Finding, bool) {
	m := Parse(text)
	items, ok := m.Array()
	if !ok {
		obj, isObj := m.Object()
		if !isObj {
			return nil, false
		}
		items, ok = wrappedList(obj)
		if !ok {
			return nil, false
		}
	}

	findings := make([]ledger.Finding, 0, len(items))
	for i, item := range items {
		obj, _ := item.(map[string]any)
		f := ledger.Finding{
			Name:        field(obj, "name"),
			Status:      status(field(obj, "status")),
			Location:    field(obj, "location"),
			Excerpt:     field(obj, "excerpt"),
			Explanation: field(obj, "explanation"),
			Suggestion:  field(obj, "suggestion"),
		}
		if f.Name == "" {
			f.Name = ledger.DefaultName(i)
		}
		findings = append(findings, f)
	}
	return findings, true
}

// Verdict coerces verification output. Unparsable output, or output that is
// not an object, becomes {unknown, raw text}. A missing comment also falls
// back to the raw text.
func Verdict(text string) ledger.VerifyResult {
	obj, ok := Parse(text).Object()
	if !ok {
		return ledger.VerifyResult{Fixed: ledger.FixedUnknown, Comment: text}
	}

	res := ledger.VerifyResult{Fixed: ledger.FixedUnknown, Comment: text}
	if _, ok := obj["comment"]; ok {
		res.Comment = field(obj, "comment")
	}
	switch v := obj["fixed"].(type) {
	case bool:
		res.Fixed = ledger.FixedNo
		if v {
			res.Fixed = ledger.FixedYes
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "true", "fixed":
			res.Fixed = ledger.FixedYes
		case "no", "false":
			res.Fixed = ledger.FixedNo
		}
	}
	return res
}

// Steps coerces step-split output of the form {"steps":[{label,text}]} or a
// bare array of steps.
func Steps(text string) ([]Step, bool) {
	m := Parse(text)
	items, ok := m.Array()
	if !ok {
		obj, isObj := m.Object()
		if !isObj {
			return nil, false
		}
		items, ok = obj["steps"].([]any)
		if !ok {
			return nil, false
		}
	}

	steps := make([]Step, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		steps = append(steps, Step{Label: field(obj, "label"), Text: field(obj, "text")})
	}
	return steps, true
}

func wrappedList(obj map[string]any) ([]any, bool) {
	for _, k := range listKeys {
		if arr, ok := obj[k].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func status(s string) ledger.Status {
	if strings.EqualFold(strings.TrimSpace(s), string(ledger.StatusYes)) {
		return ledger.StatusYes
	}
	return ledger.StatusNo
}

// field reads obj[key] as display text. Missing keys and nulls are empty.
func field(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
