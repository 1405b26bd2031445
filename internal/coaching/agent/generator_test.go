package agent

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"dealer_coach_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type fakeLLM struct {
	parts []string
	err   error
	req   *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.req = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		content := &genai.Content{Role: genai.RoleModel}
		for _, p := range f.parts {
			content.Parts = append(content.Parts, &genai.Part{Text: p})
		}
		yield(&model.LLMResponse{Content: content}, nil)
	}
}

func TestLLMGeneratorSendsSystemAndPayload(t *testing.T) {
	llm := &fakeLLM{parts: []string{"[1,", " 2]"}}
	gen := NewLLMGenerator(llm, GeneratorOptions{Temperature: 0.2, Timeout: time.Second}, logger.Discard())

	out, err := gen.Generate(context.Background(), Prompt{
		Stage:   StageRanking,
		System:  "be brief",
		Payload: map[string]any{"goal": "a < b"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "[1, 2]" {
		t.Fatalf("expected concatenated parts, got %q", out)
	}

	cfg := llm.req.Config
	if cfg == nil || cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatal("system instruction not set")
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.2) {
		t.Fatalf("temperature not set: %v", cfg.Temperature)
	}
	if got := llm.req.Contents[0].Parts[0].Text; got != `{"goal":"a < b"}` {
		t.Fatalf("unexpected user payload %q", got)
	}
}

func TestLLMGeneratorPropagatesErrors(t *testing.T) {
	gen := NewLLMGenerator(&fakeLLM{err: errors.New("429")}, GeneratorOptions{}, logger.Discard())
	if _, err := gen.Generate(context.Background(), Prompt{Payload: "hi"}); err == nil {
		t.Fatal("expected error")
	}
}
