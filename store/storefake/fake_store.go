package storefake

import (
	"context"
	"sync"

	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/jrsteele09/go-lstech-balance/store"
)

var _ store.Store = (*FakeStore)(nil)

type FakeStore struct {
	states map[string]session.PersistedState
	saves  int
	lock   sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		states: make(map[string]session.PersistedState),
	}
}

func (fs *FakeStore) Load(_ context.Context, account string) (session.PersistedState, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	st, ok := fs.states[account]
	if !ok {
		return session.PersistedState{}, ierrors.ErrNotFound
	}
	return st, nil
}

func (fs *FakeStore) Save(_ context.Context, account string, state session.PersistedState) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.states[account] = state
	fs.saves++
	return nil
}

func (fs *FakeStore) Delete(_ context.Context, account string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, ok := fs.states[account]; !ok {
		return ierrors.ErrNotFound
	}
	delete(fs.states, account)
	return nil
}

// Saves returns how many times Save was called.
func (fs *FakeStore) Saves() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.saves
}
