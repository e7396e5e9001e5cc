package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL はOpenAI互換APIのベースURL。
	DefaultBaseURL = "https://api.openai.com/v1/"
	// DefaultModel は既定のモデル名。
	DefaultModel = "gpt-4o-mini"
)

var (
	// ErrNotConfigured はAPIキーが設定されていないことを表す。
	ErrNotConfigured = errors.New("text generation is not configured")
	// ErrEmptyResponse は応答に候補テキストが含まれていないことを表す。
	ErrEmptyResponse = errors.New("text generation returned no content")
)

// ChatClientConfig はChatClientの設定。
type ChatClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// ChatClient はOpenAI互換のチャット補完APIのクライアント。
type ChatClient struct {
	client     openai.Client
	logger     *slog.Logger
	baseURL    string
	configured bool
	model      openai.ChatModel
}

// NewChatClient はChatClientを生成する。
// httpClientには外部向けの保護付きクライアントを渡す。SDKの自動リトライは無効にする。
func NewChatClient(httpClient *http.Client, logger *slog.Logger, config ChatClientConfig) *ChatClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", "Fonomed/1.0"),
	)
	return &ChatClient{
		client:     client,
		logger:     logger,
		baseURL:    config.BaseURL,
		configured: config.APIKey != "",
		model:      openai.ChatModel(config.Model),
	}
}

// Complete はシステムメッセージとユーザーメッセージを送り、最初の候補テキストを返す。
func (c *ChatClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Warn("テキスト生成APIがエラーステータスを返しました",
				slog.Int("http_status", apiErr.StatusCode),
			)
			return "", fmt.Errorf("テキスト生成APIがステータス %d を返しました", apiErr.StatusCode)
		}
		c.logger.Warn("テキスト生成APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
