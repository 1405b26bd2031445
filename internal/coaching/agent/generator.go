// Package agent holds the coaching stages that talk to the text generation
// service: recommendation ranking, delegated targeting, message composition,
// performance classification, goal validation and data summaries.
//
// Each call site has its own failure policy. Ranking, composition,
// classification and summaries fail fast; targeting falls back to the
// deterministic policy.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dealer_coach_backend/platform/apperr"
	"dealer_coach_backend/platform/logger"
	"dealer_coach_backend/platform/metrics"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Stage names used for logs and metrics.
const (
	StageRanking        = "ranking"
	StageTargeting      = "targeting"
	StageComposition    = "composition"
	StageClassification = "classification"
	StageGoalValidation = "goal_validation"
	StageSummary        = "summary"
)

// Prompt is one request to the text generation service. Payload is sent as
// the user message: strings verbatim, anything else as JSON.
type Prompt struct {
	Stage   string
	System  string
	Payload any
}

// TextGenerator returns free-form text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorOptions tunes LLMGenerator.
type GeneratorOptions struct {
	Temperature float64
	Timeout     time.Duration
}

// LLMGenerator adapts an ADK model to TextGenerator. Every call is bounded by
// the configured timeout and never retried.
type LLMGenerator struct {
	llm  model.LLM
	opts GeneratorOptions
	log  *logger.Logger
}

// NewLLMGenerator wraps llm.
func NewLLMGenerator(llm model.LLM, opts GeneratorOptions, log *logger.Logger) *LLMGenerator {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &LLMGenerator{llm: llm, opts: opts, log: log}
}

// Generate runs one non-streaming completion and concatenates its text parts.
func (g *LLMGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	user, err := payloadText(p.Payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", p.Stage, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	temp := float32(g.opts.Temperature)
	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
			Temperature:       &temp,
		},
	}

	var out strings.Builder
	for resp, err := range g.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				out.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func payloadText(payload any) (string, error) {
	switch v := payload.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return "", err
		}
		return strings.TrimSpace(buf.String()), nil
	}
}

// call runs a prompt, records metrics and turns any failure into a
// generation format error for the stage.
func call(ctx context.Context, gen TextGenerator, log *logger.Logger, p Prompt) (string, error) {
	if gen == nil {
		metrics.RecordCollaboratorCall(p.Stage, "unavailable")
		return "", apperr.GenerationFormat(p.Stage+": text generation is not configured", nil)
	}
	raw, err := gen.Generate(ctx, p)
	if err != nil {
		metrics.RecordCollaboratorCall(p.Stage, "error")
		if log != nil {
			log.WithContext(ctx).CollaboratorCall(p.Stage, "error")
		}
		return "", apperr.GenerationFormat(p.Stage+": text generation failed", err)
	}
	metrics.RecordCollaboratorCall(p.Stage, "ok")
	if log != nil {
		log.WithContext(ctx).CollaboratorCall(p.Stage, "ok")
	}
	return raw, nil
}

// ExtractJSON pulls a JSON value out of model output. It tries, in order:
// the whole text (code fences removed), the span from the first open
// delimiter to the last close delimiter, and the first balanced span.
func ExtractJSON(raw string, open, close byte) (string, bool) {
	s := stripFences(raw)
	if s == "" {
		return "", false
	}
	if s[0] == open && json.Valid([]byte(s)) {
		return s, true
	}

	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return "", false
	}
	if candidate := s[start : end+1]; json.Valid([]byte(candidate)) {
		return candidate, true
	}

	if balanced, ok := firstBalanced(s[start:], open, close); ok && json.Valid([]byte(balanced)) {
		return balanced, true
	}
	return "", false
}

// firstBalanced returns the prefix of s up to the delimiter that closes s[0],
// skipping delimiters inside JSON strings.
func firstBalanced(s string, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeArray extracts and decodes a JSON array from model output.
func decodeArray[T any](stage, raw string) ([]T, error) {
	body, ok := ExtractJSON(raw, '[', ']')
	if !ok {
		return nil, apperr.GenerationFormat(stage+": response contains no JSON array", nil).WithDetails(truncate(raw, 200))
	}
	var out []T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, apperr.GenerationFormat(stage+": response array has an unexpected shape", err)
	}
	return out, nil
}

// decodeObject extracts and decodes a JSON object from model output.
func decodeObject[T any](stage, raw string) (T, error) {
	var out T
	body, ok := ExtractJSON(raw, '{', '}')
	if !ok {
		return out, apperr.GenerationFormat(stage+": response contains no JSON object", nil).WithDetails(truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, apperr.GenerationFormat(stage+": response object has an unexpected shape", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
