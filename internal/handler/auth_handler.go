// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/socialsense/internal/auth"
	"github.com/hitoshi/socialsense/internal/metrics"
	"github.com/hitoshi/socialsense/internal/middleware"
	"github.com/hitoshi/socialsense/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (string, error)
}

// LoginMetrics はログイン結果を記録する。
type LoginMetrics interface {
	RecordLogin(result string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string // コールバック後のリダイレクト先
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics LoginMetrics
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, metrics LoginMetrics) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: metrics,
	}
}

// Login はFacebook OAuthフローを開始する。
// GET /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理し、セッショントークン付きでフロントエンドへリダイレクトする。
// GET /api/v1/auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// 1. Facebook側でのエラー（ユーザーによる拒否など）
	if errParam := query.Get("error"); errParam != "" {
		reason := firstNonEmpty(query.Get("error_description"), query.Get("error_reason"), errParam)
		h.fail(w, http.StatusBadRequest, model.NewLoginFailedError("Facebook login failed: "+reason))
		return
	}

	// 2. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.fail(w, http.StatusBadRequest, model.NewLoginFailedError("Invalid OAuth state parameter."))
		return
	}
	h.clearStateCookie(w)

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, model.NewLoginFailedError("Missing authorization code from Facebook."))
		return
	}

	// 4. 認証処理
	token, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.fail(w, http.StatusInternalServerError, callbackError(err))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(metrics.LoginSuccess)
	}

	// 5. トークン付きでフロントエンドにリダイレクト
	redirectURL := h.config.FrontendURL + "/auth/callback?token=" + url.QueryEscape(token)
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}

// Me は現在のセッションのクレームを返す。委任クレデンシャルは含めない。
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:        claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		Picture:   claims.Avatar,
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
}

// meResponse は/auth/meのレスポンス。
type meResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Picture   string `json:"picture,omitempty"`
	ExpiresAt int64  `json:"exp"`
}

func (h *AuthHandler) fail(w http.ResponseWriter, status int, apiErr *model.APIError) {
	if h.metrics != nil {
		h.metrics.RecordLogin(metrics.LoginFailure)
	}
	writeAPIErrorResponse(w, status, apiErr)
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// callbackError はログイン処理の失敗段階に応じたエラーを返す。
func callbackError(err error) *model.APIError {
	var loginErr *auth.UpstreamLoginError
	if errors.As(err, &loginErr) {
		switch loginErr.Stage {
		case auth.StageTokenExchange:
			return model.NewLoginFailedError("Could not exchange code for token.")
		case auth.StageProfileFetch:
			return model.NewLoginFailedError("Could not fetch user info from Facebook.")
		}
	}
	return model.NewInternalError()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
