package poller

import (
	"context"

	"github.com/jrsteele09/go-lstech-balance/session"
)

// Reporter receives the outcome of every cycle that ran.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// ReauthRequester is asked to get a human to log in again.
type ReauthRequester interface {
	RequestReauth(ctx context.Context, account string, cause error)
}

// StatePersister stores session state so the engine can be rebuilt without a login.
type StatePersister interface {
	Persist(ctx context.Context, account string, state session.PersistedState) error
}

// StateLoader reads back what a StatePersister stored, including state written by a
// login in another process. It returns errors.ErrNotFound when nothing is stored.
type StateLoader interface {
	Load(ctx context.Context, account string) (session.PersistedState, error)
}

// Collaborators are the engine's outbound contracts. Nil members are skipped.
type Collaborators struct {
	Account   string
	Reporter  Reporter
	Reauth    ReauthRequester
	Persister StatePersister
	// Loader is consulted while the session waits for a new login.
	Loader StateLoader
}
