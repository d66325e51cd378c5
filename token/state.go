package token

import (
	"time"

	"github.com/jrsteele09/go-lstech-balance/session"
)

// State is the lifecycle position of a session.
type State int

const (
	Anonymous State = iota
	// Authenticating is only ever reported by the owner of a login in flight.
	Authenticating
	Authenticated
	RefreshDue
	// ReauthRequired is terminal until a new login replaces the session.
	ReauthRequired
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case RefreshDue:
		return "refresh_due"
	case ReauthRequired:
		return "reauth_required"
	default:
		return "unknown"
	}
}

func stateAt(s session.Session, now time.Time) State {
	switch {
	case s.IsEmpty():
		return Anonymous
	case s.ReauthRequired, s.RefreshExpired(now):
		return ReauthRequired
	case s.AccessDue(now):
		return RefreshDue
	default:
		return Authenticated
	}
}
