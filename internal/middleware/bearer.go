// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/socialsense/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストにセッションクレームを格納するためのキー。
var claimsContextKey = contextKey("session_claims")

// TokenValidator はセッショントークンの検証に必要なインターフェース。
// auth.TokenIssuerが実装する。
type TokenValidator interface {
	Validate(token string) (*model.SessionClaims, error)
}

// NewBearerMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 検証済みクレームをリクエストコンテキストに注入する。
// 失敗理由にかかわらず同じ401レスポンスを返す。
func NewBearerMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteUnauthorized(w)
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				slog.Debug("トークン検証失敗",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteUnauthorized(w)
				return
			}

			setLoggedUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。スキーム名の大文字小文字は区別しない。
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext はリクエストコンテキストからセッションクレームを取得する。
// Bearerミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*model.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*model.SessionClaims)
	return claims, ok && claims != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーID（sub）を取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", errors.New("user ID not found in context")
	}
	return claims.Subject, nil
}

// ContextWithClaims はコンテキストにセッションクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *model.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
