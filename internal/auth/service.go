// Package auth はFacebook OAuthログインとセッショントークンの発行・検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/socialsense/internal/model"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string // "facebook"
	AccessToken    string // 委任クレデンシャル
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// LoginRecorder はログインしたユーザーを記録する。
// identityが既存ならそのユーザーのプロフィールを更新し、なければユーザーとidentityを作成する。
// いずれの場合もログインイベントを追加し、記録したユーザーIDを返す。
type LoginRecorder interface {
	RecordLogin(ctx context.Context, user *model.User, identity *model.Identity, event *model.LoginEvent) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration // セッショントークン有効期間
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth    OAuthProvider
	issuer   *TokenIssuer
	recorder LoginRecorder
	config   ServiceConfig
}

// NewService はServiceを生成する。recorderはnilでもよい（ログインを記録しない）。
func NewService(oauth OAuthProvider, issuer *TokenIssuer, recorder LoginRecorder, config ServiceConfig) *Service {
	return &Service{
		oauth:    oauth,
		issuer:   issuer,
		recorder: recorder,
		config:   config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// LoginRecorderが設定されている場合は記録に失敗するとログイン自体を失敗させる。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, error) {
	// 1. 認可コードをトークンに交換し、プロフィールを取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. ログインを記録
	if s.recorder != nil {
		userID, err := s.recordLogin(ctx, userInfo)
		if err != nil {
			return "", fmt.Errorf("failed to record login: %w", err)
		}
		slog.Info("user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	}

	// 3. セッショントークンを発行
	token, err := s.issuer.Issue(model.SessionClaims{
		Subject:             userInfo.ProviderUserID,
		Name:                userInfo.Name,
		Email:               userInfo.Email,
		Avatar:              userInfo.AvatarURL,
		DelegatedCredential: userInfo.AccessToken,
	}, s.config.SessionTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}

	return token, nil
}

// recordLogin はユーザー・identity・ログインイベントを記録する。
func (s *Service) recordLogin(ctx context.Context, userInfo *OAuthUserInfo) (string, error) {
	now := time.Now()
	userID := uuid.New().String()

	user := &model.User{
		ID:        userID,
		Email:     userInfo.Email,
		Name:      userInfo.Name,
		AvatarURL: userInfo.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      now,
	}
	event := &model.LoginEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
	}

	return s.recorder.RecordLogin(ctx, user, identity, event)
}

// GenerateState はOAuthのstateパラメータ用の乱数文字列を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
