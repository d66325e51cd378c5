// Package session holds the authenticated identity of one vendor account.
//
// A Session is a value. Operations that change it take a Session and return the
// updated copy; nothing in the client mutates a Session in place.
package session

import (
	"time"

	"golang.org/x/oauth2"
)

// Safety margins applied before the stored expiry instants.
const (
	AccessRefreshMargin = 300 * time.Second
	RefreshExpiryMargin = 30 * time.Second
)

// Session is either empty (never logged in) or fully populated.
type Session struct {
	UID      string
	MemberID string
	Nickname string

	AccessToken          string
	AccessTokenExpiresAt time.Time

	RefreshToken          string
	RefreshTokenExpiresAt time.Time

	// LastLoginAt anchors the refresh token lifetime.
	LastLoginAt time.Time
	// LastTokenRefresh anchors the access token lifetime.
	LastTokenRefresh time.Time

	// ReauthRequired is set when the backend rejected the session outright. It is
	// not persisted and is cleared by replacing the session with a new login.
	ReauthRequired bool
}

// Grant is what a successful login returns.
type Grant struct {
	UID             string
	MemberID        string
	Nickname        string
	AccessToken     string
	AccessLifetime  time.Duration
	RefreshToken    string
	RefreshLifetime time.Duration
}

func Empty() Session {
	return Session{}
}

// New builds a populated session from a login grant received at now.
func New(g Grant, now time.Time) Session {
	return Session{
		UID:                   g.UID,
		MemberID:              g.MemberID,
		Nickname:              g.Nickname,
		AccessToken:           g.AccessToken,
		AccessTokenExpiresAt:  now.Add(g.AccessLifetime),
		RefreshToken:          g.RefreshToken,
		RefreshTokenExpiresAt: now.Add(g.RefreshLifetime),
		LastLoginAt:           now,
		LastTokenRefresh:      now,
	}
}

// WithAccess returns a copy carrying a refreshed access token.
func (s Session) WithAccess(token string, lifetime time.Duration, now time.Time) Session {
	s.AccessToken = token
	s.AccessTokenExpiresAt = now.Add(lifetime)
	s.LastTokenRefresh = now
	return s
}

// Invalidated returns a copy marked as requiring a fresh login.
func (s Session) Invalidated() Session {
	s.ReauthRequired = true
	return s
}

func (s Session) IsEmpty() bool {
	return s.UID == "" &&
		s.MemberID == "" &&
		s.AccessToken == "" &&
		s.RefreshToken == "" &&
		s.AccessTokenExpiresAt.IsZero() &&
		s.RefreshTokenExpiresAt.IsZero() &&
		s.LastLoginAt.IsZero() &&
		s.LastTokenRefresh.IsZero()
}

// IsPopulated reports whether every field needed to sign and refresh is set.
// Nickname is informational and may be blank.
func (s Session) IsPopulated() bool {
	return s.UID != "" &&
		s.MemberID != "" &&
		s.AccessToken != "" &&
		s.RefreshToken != "" &&
		!s.AccessTokenExpiresAt.IsZero() &&
		!s.RefreshTokenExpiresAt.IsZero() &&
		!s.LastLoginAt.IsZero() &&
		!s.LastTokenRefresh.IsZero()
}

// AccessDue reports whether the access token is inside its refresh margin at now.
func (s Session) AccessDue(now time.Time) bool {
	return !now.Before(s.AccessTokenExpiresAt.Add(-AccessRefreshMargin))
}

// RefreshExpired reports whether the refresh token can no longer be exchanged at now.
func (s Session) RefreshExpired(now time.Time) bool {
	return now.After(s.RefreshTokenExpiresAt.Add(-RefreshExpiryMargin))
}

// SameTokens reports whether two sessions carry the same access token state, which is
// what the persistence collaborator cares about.
func (s Session) SameTokens(o Session) bool {
	return s.AccessToken == o.AccessToken &&
		s.LastTokenRefresh.Equal(o.LastTokenRefresh) &&
		s.RefreshToken == o.RefreshToken &&
		s.UID == o.UID
}

// OAuth2Token exposes the access token in x/oauth2 form. It returns nil for an empty
// session.
func (s Session) OAuth2Token() *oauth2.Token {
	if s.AccessToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "token",
		RefreshToken: s.RefreshToken,
		Expiry:       s.AccessTokenExpiresAt,
	}
}

// Redact shortens a credential for logs.
func Redact(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "***"
}
