package moonshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func TestGenerateContentSendsSystemAndUserMessages(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[1,2]"}}]}`))
	}))
	defer srv.Close()

	m := NewModel(Config{APIKey: "key", BaseURL: srv.URL + "/", Model: "test-model"})
	temp := float32(0.2)
	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText("payload", genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("rules", genai.RoleUser),
			Temperature:       &temp,
		},
	}

	var text string
	for resp, err := range m.GenerateContent(context.Background(), req, false) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text = resp.Content.Parts[0].Text
	}

	if text != "[1,2]" {
		t.Fatalf("expected response text, got %q", text)
	}
	if got.Model != "test-model" {
		t.Fatalf("expected model test-model, got %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != "rules" {
		t.Fatalf("expected system message first, got %+v", got.Messages)
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "payload" {
		t.Fatalf("expected user payload, got %+v", got.Messages[1])
	}
	if got.Temperature == nil || *got.Temperature < 0.19 || *got.Temperature > 0.21 {
		t.Fatalf("expected temperature 0.2, got %v", got.Temperature)
	}
}

func TestGenerateContentSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := NewModel(Config{APIKey: "key", BaseURL: srv.URL})
	for _, err := range m.GenerateContent(context.Background(), &model.LLMRequest{}, false) {
		if err == nil {
			t.Fatal("expected error for 429 response")
		}
	}
}
