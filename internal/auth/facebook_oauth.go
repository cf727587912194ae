package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultFacebookDialogURL = "https://www.facebook.com/v19.0/dialog/oauth"
	defaultFacebookGraphURL  = "https://graph.facebook.com/v20.0"

	// ProviderFacebook はidentitiesテーブルに記録するプロバイダー名。
	ProviderFacebook = "facebook"
)

// facebookScopes はログイン時に要求する権限。
var facebookScopes = []string{"email", "public_profile", "user_posts"}

// ログイン処理の段階。UpstreamLoginErrorに記録する。
const (
	StageTokenExchange = "token_exchange"
	StageProfileFetch  = "profile_fetch"
)

// UpstreamLoginError はFacebookとのログイン処理が失敗した段階を表す。
type UpstreamLoginError struct {
	Stage string
	Err   error
}

func (e *UpstreamLoginError) Error() string {
	return fmt.Sprintf("facebook login failed at %s: %v", e.Stage, e.Err)
}

func (e *UpstreamLoginError) Unwrap() error {
	return e.Err
}

// FacebookOAuthConfig はFacebook OAuthプロバイダーの設定。
type FacebookOAuthConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string

	// テスト用にオーバーライド可能なURL
	DialogURL string
	GraphURL  string

	// nilの場合はタイムアウト付きのデフォルトクライアントを使う
	HTTPClient *http.Client
}

// FacebookOAuthProvider はFacebookのOAuth 2.0ログインを提供する。
type FacebookOAuthProvider struct {
	oauth    *oauth2.Config
	graphURL string
	client   *http.Client
}

// NewFacebookOAuthProvider はFacebookOAuthProviderを生成する。
func NewFacebookOAuthProvider(config FacebookOAuthConfig) *FacebookOAuthProvider {
	if config.DialogURL == "" {
		config.DialogURL = defaultFacebookDialogURL
	}
	if config.GraphURL == "" {
		config.GraphURL = defaultFacebookGraphURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	graphURL := strings.TrimRight(config.GraphURL, "/")

	return &FacebookOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.AppID,
			ClientSecret: config.AppSecret,
			RedirectURL:  config.RedirectURL,
			// Facebookはカンマ区切りのscopeを受け付ける
			Scopes: []string{strings.Join(facebookScopes, ",")},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.DialogURL,
				TokenURL:  graphURL + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		graphURL: graphURL,
		client:   config.HTTPClient,
	}
}

// GetLoginURL はFacebookログインダイアログのURLを生成する。
func (p *FacebookOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// facebookTokenResponse は長期トークン交換エンドポイントのレスポンス。
type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// facebookProfile は/meエンドポイントのレスポンス。
type facebookProfile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、プロフィールを取得する。
// 長期トークンへの交換に失敗した場合は警告を記録し、短期トークンを使い続ける。
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	// 1. 認可コードを短期トークンに交換
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &UpstreamLoginError{Stage: StageTokenExchange, Err: err}
	}
	if token.AccessToken == "" {
		return nil, &UpstreamLoginError{Stage: StageTokenExchange, Err: fmt.Errorf("empty access token in response")}
	}
	accessToken := token.AccessToken

	// 2. 長期トークンへ交換
	longLived, err := p.exchangeLongLived(ctx, accessToken)
	if err != nil {
		slog.Warn("failed to obtain long-lived token, using short-lived token",
			slog.String("error", err.Error()),
		)
	} else {
		accessToken = longLived
	}

	// 3. プロフィールを取得
	profile, err := p.fetchProfile(ctx, accessToken)
	if err != nil {
		return nil, &UpstreamLoginError{Stage: StageProfileFetch, Err: err}
	}

	return &OAuthUserInfo{
		ProviderUserID: profile.ID,
		Email:          profile.Email,
		Name:           profile.Name,
		AvatarURL:      profile.Picture.Data.URL,
		Provider:       ProviderFacebook,
		AccessToken:    accessToken,
	}, nil
}

// exchangeLongLived は短期トークンを長期トークンに交換する。
func (p *FacebookOAuthProvider) exchangeLongLived(ctx context.Context, shortLived string) (string, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {p.oauth.ClientID},
		"client_secret":     {p.oauth.ClientSecret},
		"fb_exchange_token": {shortLived},
	}

	body, err := p.get(ctx, p.oauth.Endpoint.TokenURL+"?"+params.Encode(), "")
	if err != nil {
		return "", err
	}

	var tokenResp facebookTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return tokenResp.AccessToken, nil
}

// fetchProfile はアクセストークンでFacebookのプロフィールを取得する。
func (p *FacebookOAuthProvider) fetchProfile(ctx context.Context, accessToken string) (*facebookProfile, error) {
	body, err := p.get(ctx, p.graphURL+"/me?fields=id,name,email,picture", accessToken)
	if err != nil {
		return nil, err
	}

	var profile facebookProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("empty id in profile response")
	}
	return &profile, nil
}

// get はGETリクエストを送り、2xxの場合にボディを返す。
func (p *FacebookOAuthProvider) get(ctx context.Context, rawURL, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// compile-time interface check
var _ OAuthProvider = (*FacebookOAuthProvider)(nil)
