package session

import (
	"time"

	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
)

// PersistedState is the set of fields a session is rebuilt from without a new login.
//
// Older stores kept the token lifetimes in seconds instead of absolute expiries; those
// are still accepted and anchored on the last refresh and last login times.
type PersistedState struct {
	UID                   string    `json:"uid"`
	MemberID              string    `json:"member_id"`
	Nickname              string    `json:"nickname"`
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	LastTokenRefresh      time.Time `json:"last_token_refresh"`
	LastLoginAt           time.Time `json:"last_login"`

	AccessTokenExpire  int64 `json:"access_token_expire,omitempty"`
	RefreshTokenExpire int64 `json:"refresh_token_expire,omitempty"`
}

// Persisted returns the state to hand to the persistence collaborator.
func (s Session) Persisted() PersistedState {
	return PersistedState{
		UID:                   s.UID,
		MemberID:              s.MemberID,
		Nickname:              s.Nickname,
		AccessToken:           s.AccessToken,
		RefreshToken:          s.RefreshToken,
		AccessTokenExpiresAt:  s.AccessTokenExpiresAt.UTC(),
		RefreshTokenExpiresAt: s.RefreshTokenExpiresAt.UTC(),
		LastTokenRefresh:      s.LastTokenRefresh.UTC(),
		LastLoginAt:           s.LastLoginAt.UTC(),
	}
}

// FromPersisted rebuilds a session. An all-blank state yields the empty session; a
// state that is neither blank nor complete is rejected.
func FromPersisted(p PersistedState) (Session, error) {
	s := Session{
		UID:                   p.UID,
		MemberID:              p.MemberID,
		Nickname:              p.Nickname,
		AccessToken:           p.AccessToken,
		RefreshToken:          p.RefreshToken,
		AccessTokenExpiresAt:  p.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: p.RefreshTokenExpiresAt,
		LastTokenRefresh:      p.LastTokenRefresh,
		LastLoginAt:           p.LastLoginAt,
	}

	if s.AccessTokenExpiresAt.IsZero() {
		switch {
		case p.AccessTokenExpire > 0 && !s.LastTokenRefresh.IsZero():
			s.AccessTokenExpiresAt = s.LastTokenRefresh.Add(time.Duration(p.AccessTokenExpire) * time.Second)
		case s.AccessToken != "":
			if exp, ok := ExpiryHint(s.AccessToken); ok {
				s.AccessTokenExpiresAt = exp
			}
		}
	}
	if s.RefreshTokenExpiresAt.IsZero() && p.RefreshTokenExpire > 0 && !s.LastLoginAt.IsZero() {
		s.RefreshTokenExpiresAt = s.LastLoginAt.Add(time.Duration(p.RefreshTokenExpire) * time.Second)
	}

	switch {
	case s.IsEmpty() && s.Nickname == "":
		return Empty(), nil
	case !s.IsPopulated():
		return Empty(), ierrors.ErrSessionIncomplete
	}
	return s, nil
}
