package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"RemitChain/internal/llm"
)

func newTestServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		w.WriteHeader(status)
		if status >= http.StatusBadRequest {
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestParseIntentSuccess(t *testing.T) {
	content := "```json\n{\"action\":\"send\",\"amount\":50,\"sourceCurrency\":\"cUSD\",\"targetCurrency\":\"cKES\",\"confidence\":0.9}\n```"
	server := newTestServer(t, http.StatusOK, content)
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := client.ParseIntent(context.Background(), llm.Request{Text: "Send $50 to Kenya"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Action != "send" || raw.Amount != 50 || raw.TargetCurrency != "cKES" {
		t.Fatalf("unexpected raw intent: %+v", raw)
	}
	if raw.Confidence != 0.9 {
		t.Fatalf("unexpected confidence: %v", raw.Confidence)
	}
}

func TestParseIntentMalformedJSON(t *testing.T) {
	server := newTestServer(t, http.StatusOK, "sorry, I cannot help with that")
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.ParseIntent(context.Background(), llm.Request{Text: "Send $50 to Kenya"}); err == nil {
		t.Fatalf("expected error for non-JSON content")
	}
}

func TestParseIntentServerError(t *testing.T) {
	server := newTestServer(t, http.StatusInternalServerError, "")
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := client.ParseIntent(context.Background(), llm.Request{Text: "hi"}); err == nil {
		t.Fatalf("expected error for HTTP 500")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without API key")
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                     "{\"a\":1}",
		"```json\n{\"a\":1}\n```":       "{\"a\":1}",
		"```\n{\"a\":1}\n```":           "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```  ":   "{\"a\":1}",
	}
	for input, expected := range cases {
		if got := stripCodeFence(input); got != expected {
			t.Fatalf("input %q: expected %q, got %q", input, expected, got)
		}
	}
}
