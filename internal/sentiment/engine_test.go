package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const testModel = "google/gemma-3-4b-it"

// chatRequest はテストで検証するリクエストのフィールド。
type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

// newModelServer はOpenAI互換のモデルサーバーを模したテストサーバーを起動する。
// replyの内容を常に返し、受け取ったリクエストをlastに保存する。
func newModelServer(t *testing.T, reply string, last *chatRequest, models ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if last != nil {
			if err := json.NewDecoder(r.Body).Decode(last); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   testModel,
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": reply},
					"finish_reason": "stop",
				},
			},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		data := make([]map[string]any, 0, len(models))
		for _, id := range models {
			data = append(data, map[string]any{"id": id, "object": "model", "created": 0, "owned_by": "local"})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestOpenAIConfig(server *httptest.Server) OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    server.URL + "/v1",
		APIKey:     "test-key",
		Model:      testModel,
		HTTPClient: server.Client(),
	}
}

func TestOpenAIEngine_Complete_TextOnly(t *testing.T) {
	var got chatRequest
	server := newModelServer(t, " Positive\n", &got)

	engine := NewOpenAIEngine(newTestOpenAIConfig(server))
	out, err := engine.Complete(context.Background(), BuildPrompt(Entry{Text: "I love it"}, nil))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != " Positive\n" {
		t.Errorf("Complete() = %q, want raw completion", out)
	}

	if got.Model != testModel {
		t.Errorf("model = %q, want %q", got.Model, testModel)
	}
	if got.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, DefaultMaxTokens)
	}
	if got.Temperature <= 0 || got.Temperature > 1e-6 {
		t.Errorf("temperature = %v, want smallest non-zero value", got.Temperature)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("roles = %s,%s, want system,user", got.Messages[0].Role, got.Messages[1].Role)
	}

	var system, user string
	if err := json.Unmarshal(got.Messages[0].Content, &system); err != nil {
		t.Fatalf("system content is not a string: %v", err)
	}
	if system != SystemInstruction {
		t.Errorf("system = %q, want fixed instruction", system)
	}
	if err := json.Unmarshal(got.Messages[1].Content, &user); err != nil {
		t.Fatalf("user content is not a string: %v", err)
	}
	if user != "I love it" {
		t.Errorf("user = %q, want %q", user, "I love it")
	}
}

func TestOpenAIEngine_Complete_WithImages(t *testing.T) {
	var got chatRequest
	server := newModelServer(t, "neutral", &got)

	cfg := newTestOpenAIConfig(server)
	cfg.MaxTokens = 8
	engine := NewOpenAIEngine(cfg)

	prompt := BuildPrompt(Entry{Text: "look"}, []string{"https://x.com/a.png", "https://x.com/b.gif"})
	if _, err := engine.Complete(context.Background(), prompt); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if got.MaxTokens != 8 {
		t.Errorf("max_tokens = %d, want 8", got.MaxTokens)
	}

	var parts []contentPart
	if err := json.Unmarshal(got.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content is not a part list: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("len(parts) = %d, want 3", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "look" {
		t.Errorf("parts[0] = %+v, want text part", parts[0])
	}
	for i, want := range []string{"https://x.com/a.png", "https://x.com/b.gif"} {
		p := parts[i+1]
		if p.Type != "image_url" || p.ImageURL == nil || p.ImageURL.URL != want {
			t.Errorf("parts[%d] = %+v, want image %s", i+1, p, want)
		}
	}
}

func TestOpenAIEngine_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(newTestOpenAIConfig(server))
	if _, err := engine.Complete(context.Background(), BuildPrompt(Entry{Text: "x"}, nil)); err == nil {
		t.Fatal("expected error for server failure")
	}
}

func TestOpenAIEngine_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	engine := NewOpenAIEngine(newTestOpenAIConfig(server))
	_, err := engine.Complete(context.Background(), BuildPrompt(Entry{Text: "x"}, nil))
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("error = %v, want ErrEmptyCompletion", err)
	}
}

func TestNewOpenAILoader(t *testing.T) {
	t.Run("model listed", func(t *testing.T) {
		server := newModelServer(t, "positive", nil, "other", testModel)

		engine, err := NewOpenAILoader(newTestOpenAIConfig(server))(context.Background())
		if err != nil {
			t.Fatalf("loader error = %v", err)
		}
		if _, ok := engine.(*OpenAIEngine); !ok {
			t.Errorf("engine type = %T, want *OpenAIEngine", engine)
		}
	})

	t.Run("model not listed", func(t *testing.T) {
		server := newModelServer(t, "positive", nil, "other")

		_, err := NewOpenAILoader(newTestOpenAIConfig(server))(context.Background())
		if !errors.Is(err, ErrModelNotListed) {
			t.Errorf("error = %v, want ErrModelNotListed", err)
		}
	})

	t.Run("server down", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewOpenAILoader(newTestOpenAIConfig(server))(context.Background())
		if err == nil {
			t.Fatal("expected error when model server is unavailable")
		}
		if !strings.Contains(err.Error(), "failed to list models") {
			t.Errorf("error = %v, want list failure", err)
		}
		if atomic.LoadInt32(&calls) != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}

func TestVaderEngine_Complete(t *testing.T) {
	engine := NewVaderEngine()

	tests := []struct {
		text string
		want string
	}{
		{"I love this, it is wonderful and amazing!", "positive"},
		{"This is terrible and I hate it.", "negative"},
		{"The box is on the table.", "neutral"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := engine.Complete(context.Background(), BuildPrompt(Entry{Text: tt.text}, nil))
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Complete(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestVaderEngine_Complete_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewVaderEngine().Complete(ctx, Prompt{Text: "good"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestNewVaderLoader(t *testing.T) {
	engine, err := NewVaderLoader()(context.Background())
	if err != nil {
		t.Fatalf("loader error = %v", err)
	}
	if _, ok := engine.(*VaderEngine); !ok {
		t.Errorf("engine type = %T, want *VaderEngine", engine)
	}
}
