// Package modelout turns free-form model output into structured values.
//
// Decoding is two-stage: the whole text is decoded as JSON, and if that
// fails the earliest bracketed span (from the first '{' or '[' to the last
// matching closer in the text) is decoded instead. Anything else yields an
// absent value. Absence is an ordinary outcome, not an error.
package modelout

import (
	"encoding/json"
	"strings"
)

// Maybe is a decoded JSON value that may be absent.
type Maybe struct {
	value   any
	present bool
}

// None is the absent value.
var None = Maybe{}

// Get returns the decoded value and whether one was found.
func (m Maybe) Get() (any, bool) { return m.value, m.present }

// Present reports whether a value was decoded.
func (m Maybe) Present() bool { return m.present }

// Object returns the value as a JSON object.
func (m Maybe) Object() (map[string]any, bool) {
	obj, ok := m.value.(map[string]any)
	return obj, m.present && ok
}

// Array returns the value as a JSON array.
func (m Maybe) Array() ([]any, bool) {
	arr, ok := m.value.([]any)
	return arr, m.present && ok
}

// Parse decodes text, falling back to the earliest bracketed span.
func Parse(text string) Maybe {
	if v, ok := decode(text); ok {
		return Maybe{value: v, present: true}
	}
	span, ok := bracketSpan(text)
	if !ok {
		return None
	}
	if v, ok := decode(span); ok {
		return Maybe{value: v, present: true}
	}
	return None
}

func decode(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// bracketSpan returns the substring from the earliest opener that has a
// closer of the same kind somewhere after it, through the last such closer.
// Objects are preferred over arrays when both could start at one position.
func bracketSpan(text string) (string, bool) {
	lastBrace := strings.LastIndexByte(text, '}')
	lastBracket := strings.LastIndexByte(text, ']')
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if lastBrace > i {
				return text[i : lastBrace+1], true
			}
		case '[':
			if lastBracket > i {
				return text[i : lastBracket+1], true
			}
		}
	}
	return "", false
}
