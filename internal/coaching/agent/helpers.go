package agent

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxGoalLength       = 600
	maxConstraintLength = 200
	maxSummaryLength    = 4000
)

// sanitizeUserInput removes control characters and truncates to maxLen runes.
func sanitizeUserInput(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := strings.TrimSpace(sb.String())
	if utf8.RuneCountInString(result) > maxLen {
		result = string([]rune(result)[:maxLen]) + "... [truncated]"
	}
	return result
}

func sanitizeAll(in []string, maxLen int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = sanitizeUserInput(s, maxLen); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// flexFloat accepts numbers, numeric strings and null.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f.Value, f.Set = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	f.Value, f.Set = v, true
	return nil
}

// or returns the value clamped to [0,1], or def when unset or not finite.
func (f flexFloat) or(def float64) float64 {
	if !f.Set || math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
		return def
	}
	return clip01(f.Value)
}

// flexString accepts strings and numbers. Model output often sends ids as
// numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	*s = flexString(string(b))
	return nil
}

// positiveInt returns the value as a positive integer, or 0.
func (s flexString) positiveInt() int {
	v, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil || v < 1 {
		return 0
	}
	return v
}

func clip01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
