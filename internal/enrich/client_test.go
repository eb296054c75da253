package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("sends request and returns completion", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Errorf("Unexpected auth header %q", got)
			}
			var req map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
			if req["model"] != "test-model" {
				t.Errorf("Unexpected model %v", req["model"])
			}
			msgs := req["messages"].([]interface{})
			content := msgs[0].(map[string]interface{})["content"].(string)
			if !strings.Contains(content, "hello") {
				t.Errorf("Prompt not forwarded: %q", content)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[{"message":{"content":"world"}}]}`))
		}))
		defer server.Close()

		client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "sk-test", Model: "test-model"})
		got, err := client.Generate(ctx, "hello", 100)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if got != "world" {
			t.Errorf("Expected completion 'world', got %q", got)
		}
	})

	t.Run("surfaces api errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}))
		defer server.Close()

		client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "sk-test"})
		_, err := client.Generate(ctx, "hello", 100)
		if err == nil || !strings.Contains(err.Error(), "rate limited") {
			t.Errorf("Expected rate limit error, got %v", err)
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "sk-test"})
		if _, err := client.Generate(ctx, "hello", 100); err == nil {
			t.Error("Expected error for empty choices")
		}
	})

	t.Run("non-json response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>gateway error</html>"))
		}))
		defer server.Close()

		client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "sk-test"})
		if _, err := client.Generate(ctx, "hello", 100); err == nil {
			t.Error("Expected error for non-JSON response")
		}
	})
}

func TestBodyFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><style>p{}</style></head>
			<body><script>var x=1;</script><nav>menu</nav>
			<p>Readable   article text.</p></body></html>`))
	}))
	defer server.Close()

	text, err := NewBodyFetcher().FetchText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchText failed: %v", err)
	}
	if text != "Readable article text." {
		t.Errorf("Unexpected extracted text: %q", text)
	}
}
