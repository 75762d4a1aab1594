package model

import "time"

// Session is an anonymous identity issued by the identity provider. The ID
// token authorizes store requests made on behalf of the session.
type Session struct {
	UserID    string    `yaml:"user_id"`
	IDToken   string    `yaml:"id_token"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// Valid reports whether the session can still be used at the given time.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.IDToken == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt)
}
