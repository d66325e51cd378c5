package session_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/stretchr/testify/require"
)

var loginTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) session.Session {
	t.Helper()
	return session.New(session.Grant{
		UID:             "10001",
		MemberID:        "20002",
		Nickname:        "jo",
		AccessToken:     "access-1",
		AccessLifetime:  2 * time.Hour,
		RefreshToken:    "refresh-1",
		RefreshLifetime: 30 * 24 * time.Hour,
	}, loginTime)
}

func TestEmptyAndPopulated(t *testing.T) {
	empty := session.Empty()
	require.True(t, empty.IsEmpty())
	require.False(t, empty.IsPopulated())

	s := newSession(t)
	require.False(t, s.IsEmpty())
	require.True(t, s.IsPopulated())
	require.Equal(t, loginTime.Add(2*time.Hour), s.AccessTokenExpiresAt)
	require.Equal(t, loginTime.Add(30*24*time.Hour), s.RefreshTokenExpiresAt)
	require.Equal(t, loginTime, s.LastLoginAt)
	require.Equal(t, loginTime, s.LastTokenRefresh)

	partial := s
	partial.RefreshToken = ""
	require.False(t, partial.IsEmpty())
	require.False(t, partial.IsPopulated())
}

func TestAccessDueBoundary(t *testing.T) {
	s := newSession(t)
	boundary := loginTime.Add(2*time.Hour - 300*time.Second)

	t.Run("before margin", func(t *testing.T) {
		require.False(t, s.AccessDue(boundary.Add(-time.Millisecond)))
	})
	t.Run("at margin", func(t *testing.T) {
		require.True(t, s.AccessDue(boundary))
	})
	t.Run("after expiry", func(t *testing.T) {
		require.True(t, s.AccessDue(loginTime.Add(3*time.Hour)))
	})
}

func TestRefreshExpiredBoundary(t *testing.T) {
	s := newSession(t)
	boundary := loginTime.Add(30*24*time.Hour - 30*time.Second)

	require.False(t, s.RefreshExpired(boundary))
	require.True(t, s.RefreshExpired(boundary.Add(time.Millisecond)))
}

func TestWithAccessKeepsIdentity(t *testing.T) {
	s := newSession(t)
	later := loginTime.Add(time.Hour)

	refreshed := s.WithAccess("access-2", time.Hour, later)
	require.Equal(t, "access-2", refreshed.AccessToken)
	require.Equal(t, later.Add(time.Hour), refreshed.AccessTokenExpiresAt)
	require.Equal(t, later, refreshed.LastTokenRefresh)
	require.Equal(t, s.UID, refreshed.UID)
	require.Equal(t, s.LastLoginAt, refreshed.LastLoginAt)
	require.Equal(t, s.RefreshTokenExpiresAt, refreshed.RefreshTokenExpiresAt)

	require.Equal(t, "access-1", s.AccessToken, "original value is untouched")
	require.False(t, s.SameTokens(refreshed))
	require.True(t, s.SameTokens(s.Invalidated()))
}

func TestPersistedRoundTrip(t *testing.T) {
	s := newSession(t)

	restored, err := session.FromPersisted(s.Persisted())
	require.NoError(t, err)
	require.True(t, restored.IsPopulated())
	require.Equal(t, s.UID, restored.UID)
	require.Equal(t, s.Nickname, restored.Nickname)
	require.True(t, s.AccessTokenExpiresAt.Equal(restored.AccessTokenExpiresAt))
	require.True(t, s.RefreshTokenExpiresAt.Equal(restored.RefreshTokenExpiresAt))
	require.True(t, s.SameTokens(restored))
}

func TestFromPersisted(t *testing.T) {
	t.Run("blank state is the empty session", func(t *testing.T) {
		s, err := session.FromPersisted(session.PersistedState{})
		require.NoError(t, err)
		require.True(t, s.IsEmpty())
	})

	t.Run("partial state is rejected", func(t *testing.T) {
		_, err := session.FromPersisted(session.PersistedState{UID: "1", AccessToken: "a"})
		require.ErrorIs(t, err, ierrors.ErrSessionIncomplete)
	})

	t.Run("lifetimes in seconds are anchored", func(t *testing.T) {
		s, err := session.FromPersisted(session.PersistedState{
			UID:                "1",
			MemberID:           "2",
			AccessToken:        "a",
			RefreshToken:       "r",
			LastTokenRefresh:   loginTime.Add(time.Hour),
			LastLoginAt:        loginTime,
			AccessTokenExpire:  7200,
			RefreshTokenExpire: 86400,
		})
		require.NoError(t, err)
		require.Equal(t, loginTime.Add(3*time.Hour), s.AccessTokenExpiresAt)
		require.Equal(t, loginTime.Add(24*time.Hour), s.RefreshTokenExpiresAt)
	})

	t.Run("jwt exp fills a missing access expiry", func(t *testing.T) {
		exp := loginTime.Add(90 * time.Minute)
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("vendor-key"))
		require.NoError(t, err)

		s, err := session.FromPersisted(session.PersistedState{
			UID:                   "1",
			MemberID:              "2",
			AccessToken:           tok,
			RefreshToken:          "r",
			RefreshTokenExpiresAt: loginTime.Add(24 * time.Hour),
			LastTokenRefresh:      loginTime,
			LastLoginAt:           loginTime,
		})
		require.NoError(t, err)
		require.True(t, exp.Equal(s.AccessTokenExpiresAt))
	})

	t.Run("opaque token without expiry is incomplete", func(t *testing.T) {
		_, err := session.FromPersisted(session.PersistedState{
			UID:                   "1",
			MemberID:              "2",
			AccessToken:           "opaque",
			RefreshToken:          "r",
			RefreshTokenExpiresAt: loginTime.Add(24 * time.Hour),
			LastTokenRefresh:      loginTime,
			LastLoginAt:           loginTime,
		})
		require.ErrorIs(t, err, ierrors.ErrSessionIncomplete)
	})
}

func TestExpiryHint(t *testing.T) {
	_, ok := session.ExpiryHint("not-a-jwt")
	require.False(t, ok)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, ok = session.ExpiryHint(tok)
	require.False(t, ok, "no exp claim")
}

func TestOAuth2Token(t *testing.T) {
	require.Nil(t, session.Empty().OAuth2Token())

	s := newSession(t)
	tok := s.OAuth2Token()
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, "refresh-1", tok.RefreshToken)
	require.Equal(t, s.AccessTokenExpiresAt, tok.Expiry)
}

func TestRedact(t *testing.T) {
	require.Equal(t, "***", session.Redact("abc"))
	require.Equal(t, "abcdef***", session.Redact("abcdefghijkl"))
}
