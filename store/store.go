// Package store persists session state per account so an engine can be rebuilt
// without a new login.
package store

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-lstech-balance/internal/config"
	"github.com/jrsteele09/go-lstech-balance/poller"
	"github.com/jrsteele09/go-lstech-balance/session"
)

// Store reads and writes persisted session state keyed by account. Load returns
// errors.ErrNotFound when nothing was stored for the account.
type Store interface {
	Load(ctx context.Context, account string) (session.PersistedState, error)
	Save(ctx context.Context, account string, state session.PersistedState) error
	Delete(ctx context.Context, account string) error
}

// Open returns the store selected by the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.GetStoreDriver() {
	case config.StoreDriverFile, "":
		fs, err := NewFileStore(cfg.GetStorePath(), cfg.GetStorePassphrase())
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.StoreDriverRedis:
		rs, err := OpenRedisStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("store.Open: unknown driver %q", cfg.GetStoreDriver())
	}
}

// Persister hands engine state changes to a Store.
type Persister struct {
	store Store
}

var (
	_ poller.StatePersister = (*Persister)(nil)
	_ poller.StateLoader    = (Store)(nil)
)

func NewPersister(s Store) *Persister {
	return &Persister{store: s}
}

func (p *Persister) Persist(ctx context.Context, account string, state session.PersistedState) error {
	return p.store.Save(ctx, account, state)
}
