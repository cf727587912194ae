package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/socialsense/internal/model"
)

// DefaultTokenTTL はttl未指定時のセッショントークン有効期間。
const DefaultTokenTTL = 30 * time.Minute

// トークン検証のエラー。呼び出し元へはどれも同じ401として返す。
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token has expired")
	ErrMissingSubject   = errors.New("token has no subject")
)

// sessionTokenClaims はJWTペイロードの形式。
type sessionTokenClaims struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Picture       string `json:"picture,omitempty"`
	FBAccessToken string `json:"fb_access_token,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名付きの自己完結型セッショントークンを発行・検証する。
// サーバー側にセッション状態は持たない。
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue はclaimsを埋め込んだトークンを発行する。expは現在時刻+ttlを秒単位に切り上げた時刻。
// ttlが0以下の場合はDefaultTokenTTLを使う。claims.ExpiresAtは無視する。
func (i *TokenIssuer) Issue(claims model.SessionClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := i.now().UTC()
	// expは秒精度なので、切り捨てると発行直後に失効し得る
	expiresAt := now.Add(ttl).Add(time.Second - 1).Truncate(time.Second)

	tc := sessionTokenClaims{
		Name:          claims.Name,
		Email:         claims.Email,
		Picture:       claims.Avatar,
		FBAccessToken: claims.DelegatedCredential,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate はトークンの署名・有効期限・subjectを検証し、埋め込まれたクレームを返す。
// 有効期限はライブラリのクレーム検証に頼らず、呼び出しごとに自前の時計で判定する。
func (i *TokenIssuer) Validate(token string) (*model.SessionClaims, error) {
	tc := &sessionTokenClaims{}
	_, err := jwt.ParseWithClaims(token, tc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if tc.ExpiresAt == nil || !i.now().Before(tc.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	if tc.Subject == "" {
		return nil, ErrMissingSubject
	}

	return &model.SessionClaims{
		Subject:             tc.Subject,
		Name:                tc.Name,
		Email:               tc.Email,
		Avatar:              tc.Picture,
		DelegatedCredential: tc.FBAccessToken,
		ExpiresAt:           tc.ExpiresAt.Time.UTC(),
	}, nil
}
