package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultIdentityProviderURL は外部IdPのセッション解決エンドポイント。
const DefaultIdentityProviderURL = "https://demobackend.emergentagent.com/auth/v1/env/oauth/session-data"

// maxProviderResponseSize はIdPレスポンスとして読み込む最大バイト数。
const maxProviderResponseSize = 1 << 20

// ErrProviderRejected は外部IdPがセッションIDを受け付けなかったことを表す。
var ErrProviderRejected = errors.New("identity provider rejected session id")

// ExternalIdentity は外部IdPから取得した利用者情報を表す。
type ExternalIdentity struct {
	Email        string
	Name         string
	Picture      string
	SessionToken string
}

// IdentityProvider は外部IdPのインターフェース。
type IdentityProvider interface {
	// ResolveSession は外部セッションIDを利用者情報に解決する。
	// IdPが拒否した場合は ErrProviderRejected を返す。
	ResolveSession(ctx context.Context, externalSessionID string) (*ExternalIdentity, error)
}

// HTTPIdentityProviderConfig はHTTPIdentityProviderの設定。
type HTTPIdentityProviderConfig struct {
	URL    string
	Client *http.Client
}

// HTTPIdentityProvider はHTTP経由で外部IdPにセッションIDを問い合わせる。
type HTTPIdentityProvider struct {
	url    string
	client *http.Client
}

// NewHTTPIdentityProvider はHTTPIdentityProviderを生成する。
func NewHTTPIdentityProvider(config HTTPIdentityProviderConfig) *HTTPIdentityProvider {
	if config.URL == "" {
		config.URL = DefaultIdentityProviderURL
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	return &HTTPIdentityProvider{url: config.URL, client: config.Client}
}

// providerSessionData はIdPのセッション解決レスポンス。
type providerSessionData struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Picture      string `json:"picture"`
	SessionToken string `json:"session_token"`
}

// ResolveSession は X-Session-ID ヘッダーにセッションIDを載せてIdPへ問い合わせる。
func (p *HTTPIdentityProvider) ResolveSession(ctx context.Context, externalSessionID string) (*ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session data request: %w", err)
	}
	req.Header.Set("X-Session-ID", externalSessionID)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session data request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read session data response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}

	var data providerSessionData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse session data response: %w", err)
	}

	if data.Email == "" || data.SessionToken == "" {
		return nil, fmt.Errorf("%w: incomplete session data", ErrProviderRejected)
	}

	return &ExternalIdentity{
		Email:        data.Email,
		Name:         data.Name,
		Picture:      data.Picture,
		SessionToken: data.SessionToken,
	}, nil
}
