package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/jonreiter/govader"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/socialsense/internal/model"
)

// DefaultMaxTokens は分類エンジンが生成する最大トークン数の既定値。
// 1単語の返答に十分な長さ。
const DefaultMaxTokens = 5

// vaderThreshold はVADERのcompoundスコアを正負に振り分ける閾値。
const vaderThreshold = 0.20

var (
	// ErrEmptyCompletion はエンジンが候補を1件も返さなかったことを示す。
	ErrEmptyCompletion = errors.New("engine returned no completion")
	// ErrModelNotListed はモデルサーバーに設定されたモデルがまだ存在しないことを示す。
	ErrModelNotListed = errors.New("model is not listed by the model server")
)

// Engine は分類エンジンのインターフェース。
// 同一のプロンプトに対しては同一の短いテキストを返すことを期待する。
type Engine interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Loader は分類エンジンを準備する。準備できていなければエラーを返す。
type Loader func(ctx context.Context) (Engine, error)

// OpenAIConfig はOpenAI互換サーバーに接続するための設定。
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client // nilの場合はTimeout付きのクライアントを生成する
}

// OpenAIEngine はOpenAI互換のchat completion APIで分類するエンジン。
// vLLM・llama.cpp server・Ollama などのローカルモデルサーバーを想定している。
type OpenAIEngine struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIEngine はOpenAIEngineを生成する。
func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	clientConfig.HTTPClient = httpClient

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAIEngine{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Complete はプロンプトを送信し、先頭の候補のテキストを返す。
// temperatureを0にするとリクエストから省略されるため、最小の正の値で貪欲法に固定する。
func (e *OpenAIEngine) Complete(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: math.SmallestNonzeroFloat32,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			userMessage(prompt),
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// ping はモデルサーバーのモデル一覧に設定されたモデルが含まれるか確認する。
func (e *OpenAIEngine) ping(ctx context.Context) error {
	list, err := e.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	for _, m := range list.Models {
		if m.ID == e.model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModelNotListed, e.model)
}

// userMessage はコメント本文と画像からuserメッセージを組み立てる。
// 画像がない場合は文字列contentのみのサーバーでも受け付けられる形にする。
func userMessage(prompt Prompt) openai.ChatCompletionMessage {
	if len(prompt.Images) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.Text}
	}

	parts := make([]openai.ChatMessagePart, 0, len(prompt.Images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt.Text,
	})
	for _, image := range prompt.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: image},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// NewOpenAILoader はモデルサーバーが設定されたモデルを公開するまで待つLoaderを返す。
func NewOpenAILoader(cfg OpenAIConfig) Loader {
	return func(ctx context.Context) (Engine, error) {
		engine := NewOpenAIEngine(cfg)
		if err := engine.ping(ctx); err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// VaderEngine はVADER辞書によるオフラインの分類エンジン。画像は無視する。
type VaderEngine struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVaderEngine はVaderEngineを生成する。
func NewVaderEngine() *VaderEngine {
	return &VaderEngine{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Complete はcompoundスコアからラベルを決める。
func (e *VaderEngine) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	score := e.analyzer.PolarityScores(prompt.Text).Compound
	switch {
	case score >= vaderThreshold:
		return model.LabelPositive, nil
	case score <= -vaderThreshold:
		return model.LabelNegative, nil
	default:
		return model.LabelNeutral, nil
	}
}

// NewVaderLoader はVaderEngineを返すLoaderを返す。
func NewVaderLoader() Loader {
	return func(ctx context.Context) (Engine, error) {
		slog.Debug("VADERエンジンを初期化")
		return NewVaderEngine(), nil
	}
}

// compile-time interface check
var (
	_ Engine = (*OpenAIEngine)(nil)
	_ Engine = (*VaderEngine)(nil)
)
