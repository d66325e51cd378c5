package poller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-lstech-balance/fetch"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/poller"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/jrsteele09/go-lstech-balance/token"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []poller.Report
}

func (r *recordingReporter) Report(_ context.Context, rep poller.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func (r *recordingReporter) byCycle(c poller.Cycle) []poller.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []poller.Report
	for _, rep := range r.reports {
		if rep.Cycle == c {
			out = append(out, rep)
		}
	}
	return out
}

type recordingReauth struct {
	mu       sync.Mutex
	accounts []string
}

func (r *recordingReauth) RequestReauth(_ context.Context, account string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, account)
}

func (r *recordingReauth) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

type recordingPersister struct {
	mu     sync.Mutex
	states []session.PersistedState
}

func (r *recordingPersister) Persist(_ context.Context, _ string, st session.PersistedState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
	return nil
}

// Load returns the last persisted state, standing in for the store a login in another
// process writes to.
func (r *recordingPersister) Load(_ context.Context, _ string) (session.PersistedState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return session.PersistedState{}, ierrors.ErrNotFound
	}
	return r.states[len(r.states)-1], nil
}

func (r *recordingPersister) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

type collaborators struct {
	reporter  *recordingReporter
	reauth    *recordingReauth
	persister *recordingPersister
}

func newCollaborators() (collaborators, poller.Collaborators) {
	c := collaborators{
		reporter:  &recordingReporter{},
		reauth:    &recordingReauth{},
		persister: &recordingPersister{},
	}
	return c, poller.Collaborators{
		Account:   "jo@example.com",
		Reporter:  c.reporter,
		Reauth:    c.reauth,
		Persister: c.persister,
		Loader:    c.persister,
	}
}

func populated() session.Session {
	return session.New(session.Grant{
		UID:             "10001",
		MemberID:        "20002",
		AccessToken:     "access-1",
		AccessLifetime:  2 * time.Hour,
		RefreshToken:    "refresh-1",
		RefreshLifetime: 24 * time.Hour,
	}, t0)
}

// stubTokens logs in instantly and never refreshes.
type stubTokens struct {
	quickErr error
}

func (s *stubTokens) Login(context.Context, string, string) (session.Session, error) {
	return populated(), nil
}

func (s *stubTokens) QuickLogin(context.Context, string, string) (session.Session, error) {
	if s.quickErr != nil {
		return session.Empty(), s.quickErr
	}
	return populated(), nil
}

func (s *stubTokens) SendVerificationCode(context.Context, string) error {
	return nil
}

func (s *stubTokens) EnsureFresh(_ context.Context, sess session.Session, _ bool) (session.Session, error) {
	return sess, nil
}

func (s *stubTokens) StateOf(sess session.Session) token.State {
	switch {
	case sess.IsEmpty():
		return token.Anonymous
	case sess.ReauthRequired:
		return token.ReauthRequired
	default:
		return token.Authenticated
	}
}

// stubFetcher answers from functions set by each test.
type stubFetcher struct {
	mu      sync.Mutex
	summary func(ctx context.Context) (*fetch.WeightSample, error)
	history func() (*fetch.HistoryEntry, error)
	detail  func(measureID string) (fetch.DetailRecord, error)
	claimed []string
}

func (f *stubFetcher) LatestSummary(ctx context.Context, s session.Session) (*fetch.WeightSample, session.Session, error) {
	sample, err := f.summary(ctx)
	return sample, s, err
}

func (f *stubFetcher) ClaimOwnership(_ context.Context, s session.Session, rawSampleID string) (bool, session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, rawSampleID)
	return true, s, nil
}

func (f *stubFetcher) HistoryHead(_ context.Context, s session.Session) (*fetch.HistoryEntry, session.Session, error) {
	if f.history == nil {
		return nil, s, nil
	}
	entry, err := f.history()
	return entry, s, err
}

func (f *stubFetcher) Detail(_ context.Context, _ session.Session, measureID string) (fetch.DetailRecord, error) {
	if f.detail == nil {
		return nil, nil
	}
	return f.detail(measureID)
}

func (f *stubFetcher) claims() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.claimed...)
}

func sampleAt(ms int64, id string) *fetch.WeightSample {
	return &fetch.WeightSample{WeightKg: 70, CapturedAt: time.UnixMilli(ms), RawSampleID: id}
}

func newStubEngine(t *testing.T, fetcher *stubFetcher, options ...poller.Option) (*poller.Engine, collaborators) {
	t.Helper()
	c, collab := newCollaborators()
	options = append([]poller.Option{poller.WithNowFunc(func() time.Time { return t0 })}, options...)
	e := poller.New(&stubTokens{}, fetcher, collab, options...)
	return e, c
}
