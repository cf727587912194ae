package model

import "time"

// SessionClaims はセッショントークンに埋め込まれるクレームを表す。
// ログイン時に1回だけ生成され、変更されない。
type SessionClaims struct {
	Subject             string
	Name                string
	Email               string
	Avatar              string
	DelegatedCredential string    // Facebookアクセストークン
	ExpiresAt           time.Time // UTC、秒精度
}

// User はログインしたことのあるユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// LoginEvent はログイン1回分の記録を表す。
type LoginEvent struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}
