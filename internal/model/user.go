package model

import "time"

// User はサービス利用ユーザーを表す。
// ID はIDプロバイダが払い出した安定識別子をそのまま使う。
type User struct {
	ID        string
	Email     string
	Name      string
	Picture   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity はIDプロバイダから取得したユーザー情報を表す。
type Identity struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// Session はユーザーのログインセッションを表す。
// ID はセッショントークンのSHA-256ハッシュで、トークン自体は保存しない。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired は指定時刻時点でセッションが失効しているかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
