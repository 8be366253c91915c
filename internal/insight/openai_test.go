package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lexiqai/insight-gateway/internal/resilience"
)

const completionBody = `{
  "id": "chatcmpl-123",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"speakers\":[]}"}
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newOpenAITestServer(t *testing.T, status int, body string, got *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header %q", auth)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIClient_Complete(t *testing.T) {
	var request map[string]any
	server := newOpenAITestServer(t, http.StatusOK, completionBody, &request)

	client, err := NewOpenAIClient("test-key", "gpt-3.5-turbo", 2000, WithBaseURL(server.URL+"/v1/"))
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	reply, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "user"},
		{Role: RoleAssistant, Content: "assistant"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != `{"speakers":[]}` {
		t.Errorf("Unexpected reply %q", reply)
	}

	if request["model"] != "gpt-3.5-turbo" {
		t.Errorf("Expected model gpt-3.5-turbo, got %v", request["model"])
	}
	if request["max_tokens"] != float64(2000) {
		t.Errorf("Expected max_tokens 2000, got %v", request["max_tokens"])
	}
	messages, _ := request["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	if first, _ := messages[0].(map[string]any); first["role"] != "system" {
		t.Errorf("Expected system message first, got %v", first["role"])
	}
}

type countingTransport struct {
	calls int
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return http.DefaultTransport.RoundTrip(r)
}

func TestOpenAIClient_HTTPClient(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, completionBody, nil)
	transport := &countingTransport{}

	client, err := NewOpenAIClient("test-key", "gpt-3.5-turbo", 2000,
		WithBaseURL(server.URL+"/v1/"),
		WithHTTPClient(&http.Client{Transport: transport}),
	)
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	if _, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "user"}}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("Expected 1 request through the configured client, got %d", transport.calls)
	}
}

func TestOpenAIClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusServiceUnavailable, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newOpenAITestServer(t, tt.status, `{"error":{"message":"nope","type":"error"}}`, nil)
			client, err := NewOpenAIClient("test-key", "gpt-3.5-turbo", 0, WithBaseURL(server.URL+"/v1/"))
			if err != nil {
				t.Fatal(err)
			}

			_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := resilience.IsRetryable(err); got != tt.retryable {
				t.Errorf("Expected retryable=%v, got %v (%v)", tt.retryable, got, err)
			}
		})
	}
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	if _, err := NewOpenAIClient("", "gpt-3.5-turbo", 0); err == nil {
		t.Error("Expected error for missing key")
	}
	if _, err := NewOpenAIClient("key", "", 0); err == nil {
		t.Error("Expected error for missing model")
	}
}

func TestNewAnyLLMClient_UnsupportedProvider(t *testing.T) {
	if _, err := NewAnyLLMClient("carrier-pigeon", "model", 0); err == nil {
		t.Error("Expected error for unsupported provider")
	}
	if _, err := NewAnyLLMClient("ollama", "", 0); err == nil {
		t.Error("Expected error for missing model")
	}
}
