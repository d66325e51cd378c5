// Package poller drives the polling cycles of one account.
//
// The engine is interval agnostic: it runs a cycle when asked to. A cycle requested
// while another of the same kind is running is skipped and reported as such; the next
// trigger retries. Every operation that touches the network runs under one mutex so a
// refresh can never race a request that relies on the previous access token.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/fetch"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/jrsteele09/go-lstech-balance/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// TokenManager is the login and refresh surface the engine drives.
type TokenManager interface {
	Login(ctx context.Context, account, password string) (session.Session, error)
	QuickLogin(ctx context.Context, phone, code string) (session.Session, error)
	SendVerificationCode(ctx context.Context, phone string) error
	EnsureFresh(ctx context.Context, s session.Session, force bool) (session.Session, error)
	StateOf(s session.Session) token.State
}

// DataFetcher reads measurement data for a session.
type DataFetcher interface {
	LatestSummary(ctx context.Context, s session.Session) (*fetch.WeightSample, session.Session, error)
	ClaimOwnership(ctx context.Context, s session.Session, rawSampleID string) (bool, session.Session, error)
	HistoryHead(ctx context.Context, s session.Session) (*fetch.HistoryEntry, session.Session, error)
	Detail(ctx context.Context, s session.Session, measureID string) (fetch.DetailRecord, error)
}

var (
	_ TokenManager       = (*token.Manager)(nil)
	_ DataFetcher        = (*fetch.Fetcher)(nil)
	_ oauth2.TokenSource = (*Engine)(nil)
)

type Engine struct {
	tokens    TokenManager
	fetcher   DataFetcher
	collab    Collaborators
	autoClaim bool
	nowFunc   func() time.Time
	logger    zerolog.Logger

	// mu serializes every network operation on the session.
	mu sync.Mutex

	// stateMu guards the fields below so readers never wait on a cycle.
	stateMu         sync.RWMutex
	session         session.Session
	lastSample      *fetch.WeightSample
	lastDetail      fetch.DetailRecord
	lastDetailAt    time.Time
	errState        apierr.State
	lastFailed      bool
	reauthRequested bool
	authenticating  bool

	summaryRunning atomic.Bool
	detailRunning  atomic.Bool
	wg             sync.WaitGroup
}

type Option func(*Engine)

// WithAutoClaim claims a new reading before its detail is fetched.
func WithAutoClaim(enabled bool) Option {
	return func(e *Engine) {
		e.autoClaim = enabled
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine with an empty session.
func New(tokens TokenManager, fetcher DataFetcher, collab Collaborators, options ...Option) *Engine {
	e := &Engine{
		tokens:  tokens,
		fetcher: fetcher,
		collab:  collab,
		session: session.Empty(),
		logger:  log.Logger,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.nowFunc == nil {
		e.nowFunc = time.Now
	}
	e.logger = e.logger.With().Str("account", collab.Account).Logger()
	return e
}

// Restore installs persisted session state without a login.
func (e *Engine) Restore(state session.PersistedState) error {
	s, err := session.FromPersisted(state)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.install(s)
	return nil
}

func (e *Engine) Login(ctx context.Context, account, password string) error {
	return e.authenticate(ctx, func() (session.Session, error) {
		return e.tokens.Login(ctx, account, password)
	})
}

// QuickLogin redeems a texted code. An empty code re-sends it and returns
// token.ErrCodeResent.
func (e *Engine) QuickLogin(ctx context.Context, phone, code string) error {
	return e.authenticate(ctx, func() (session.Session, error) {
		return e.tokens.QuickLogin(ctx, phone, code)
	})
}

func (e *Engine) SendVerificationCode(ctx context.Context, phone string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.tokens.SendVerificationCode(ctx, phone)
	e.record(err)
	return err
}

func (e *Engine) authenticate(ctx context.Context, login func() (session.Session, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.setAuthenticating(true)
	defer e.setAuthenticating(false)

	s, err := login()
	if ierrors.Is(err, token.ErrCodeResent) {
		return err
	}
	if err != nil {
		e.record(err)
		return err
	}

	e.install(s)
	e.persist(ctx, s)
	return nil
}

// install replaces the session and forgets everything tied to the previous one.
func (e *Engine) install(s session.Session) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.session = s
	e.reauthRequested = false
	e.lastFailed = false
	e.errState = apierr.State{}
}

// Token returns a fresh access token, refreshing it when due.
func (e *Engine) Token() (*oauth2.Token, error) {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.withSession(ctx, func(s session.Session) (session.Session, error) {
		return e.tokens.EnsureFresh(ctx, s, false)
	})
	e.record(err)
	if err != nil {
		return nil, err
	}
	return e.Session().OAuth2Token(), nil
}

// Trigger runs a summary cycle on its own goroutine.
func (e *Engine) Trigger(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.RunSummaryCycle(ctx)
	}()
}

// Wait blocks until every cycle started by Trigger or by a new reading has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// RunSummaryCycle fetches the latest reading. A reading newer than the last accepted
// one is reported and starts a detail cycle in the background. While the session waits
// for a new login, the stored state is checked first so a login made elsewhere is
// picked up.
func (e *Engine) RunSummaryCycle(ctx context.Context) Report {
	rep := e.newReport(CycleSummary)
	if !e.summaryRunning.CompareAndSwap(false, true) {
		rep.Status = StatusSkipped
		e.logger.Debug().Str("cycle_id", rep.CycleID.String()).Msg("summary cycle already running, skipped")
		return rep
	}
	defer e.summaryRunning.Store(false)

	logger := e.cycleLogger(rep)
	logger.Debug().Msg("summary cycle started")

	var (
		sample *fetch.WeightSample
		notice error
	)
	fctx := fetch.WithNotices(ctx, func(err error) { notice = err })

	e.mu.Lock()
	e.reloadLocked(ctx)
	err := e.withSession(fctx, func(s session.Session) (session.Session, error) {
		var err error
		sample, s, err = e.fetcher.LatestSummary(fctx, s)
		return s, err
	})
	e.mu.Unlock()

	if err != nil {
		return e.fail(ctx, rep, err)
	}
	e.settle(notice)

	switch {
	case sample == nil:
		rep.Status = StatusNoData
	case !e.acceptSample(sample):
		rep.Status = StatusStale
		logger.Debug().Time("captured_at", sample.CapturedAt).Msg("reading older than the last one, ignored")
	default:
		rep.Status = StatusUpdated
		logger.Info().Float64("weight_kg", sample.WeightKg).Time("captured_at", sample.CapturedAt).Msg("new reading")
	}
	rep = e.deliver(ctx, rep)

	if rep.Status == StatusUpdated {
		e.startDetail(ctx, sample.RawSampleID)
	}
	return rep
}

// RunDetailCycle fetches the body composition record of the newest measurement.
func (e *Engine) RunDetailCycle(ctx context.Context) Report {
	return e.runDetail(ctx, "")
}

func (e *Engine) startDetail(ctx context.Context, rawSampleID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runDetail(ctx, rawSampleID)
	}()
}

func (e *Engine) runDetail(ctx context.Context, claimID string) Report {
	rep := e.newReport(CycleDetail)
	if !e.detailRunning.CompareAndSwap(false, true) {
		rep.Status = StatusSkipped
		e.logger.Debug().Str("cycle_id", rep.CycleID.String()).Msg("detail cycle already running, skipped")
		return rep
	}
	defer e.detailRunning.Store(false)

	var notice error
	fctx := fetch.WithNotices(ctx, func(err error) { notice = err })

	e.mu.Lock()
	status, err := e.detailLocked(fctx, rep, claimID)
	e.mu.Unlock()

	if err != nil {
		return e.fail(ctx, rep, err)
	}
	e.settle(notice)
	rep.Status = status
	return e.deliver(ctx, rep)
}

// detailLocked runs with e.mu held. Only an expired session stops it before the
// detail fetch; a claim that fails otherwise is logged and the detail is read anyway.
func (e *Engine) detailLocked(ctx context.Context, rep Report, claimID string) (Status, error) {
	logger := e.cycleLogger(rep)

	if claimID != "" && e.autoClaim {
		var claimed bool
		err := e.withSession(ctx, func(s session.Session) (session.Session, error) {
			var err error
			claimed, s, err = e.fetcher.ClaimOwnership(ctx, s, claimID)
			return s, err
		})
		switch {
		case fatal(err):
			return StatusFailed, err
		case err != nil:
			logger.Warn().Err(err).Str("raw_sample_id", claimID).Msg("claim failed, reading detail anyway")
		case !claimed:
			logger.Info().Str("raw_sample_id", claimID).Msg("claim not acknowledged, reading detail anyway")
		default:
			logger.Debug().Str("raw_sample_id", claimID).Msg("reading claimed")
		}
	}

	var head *fetch.HistoryEntry
	err := e.withSession(ctx, func(s session.Session) (session.Session, error) {
		var err error
		head, s, err = e.fetcher.HistoryHead(ctx, s)
		return s, err
	})
	if err != nil {
		return StatusFailed, err
	}
	if head == nil {
		return StatusNoData, nil
	}

	record, err := e.fetcher.Detail(ctx, e.Session(), head.MeasureID)
	if err != nil {
		return StatusFailed, err
	}
	if record == nil {
		return StatusNoData, nil
	}
	if !e.acceptDetail(record, head.CapturedAt) {
		return StatusStale, nil
	}
	logger.Debug().Str("measure_id", head.MeasureID).Msg("detail updated")
	return StatusUpdated, nil
}

// withSession runs op against the current session and installs what it returns.
// Changed token state is handed to the persister. Callers hold e.mu.
func (e *Engine) withSession(ctx context.Context, op func(session.Session) (session.Session, error)) error {
	before := e.Session()
	after, err := op(before)

	e.stateMu.Lock()
	e.session = after
	e.stateMu.Unlock()

	if after.IsPopulated() && !after.SameTokens(before) {
		e.persist(ctx, after)
	}
	return err
}

// reloadLocked installs stored state that differs from a session waiting for a new
// login. Callers hold e.mu.
func (e *Engine) reloadLocked(ctx context.Context) {
	if e.collab.Loader == nil || e.State() != token.ReauthRequired {
		return
	}

	state, err := e.collab.Loader.Load(ctx, e.collab.Account)
	if ierrors.Is(err, ierrors.ErrNotFound) {
		return
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("reading stored session")
		return
	}
	s, err := session.FromPersisted(state)
	if err != nil {
		e.logger.Warn().Err(err).Msg("stored session unusable")
		return
	}
	if s.SameTokens(e.Session()) {
		return
	}

	e.install(s)
	e.logger.Info().Str("uid", s.UID).Msg("picked up session from a new login")
}

func (e *Engine) persist(ctx context.Context, s session.Session) {
	if e.collab.Persister == nil {
		return
	}
	if err := e.collab.Persister.Persist(ctx, e.collab.Account, s.Persisted()); err != nil {
		e.logger.Err(err).Msg("persisting session state")
	}
}

func (e *Engine) acceptSample(sample *fetch.WeightSample) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.lastSample != nil && !sample.CapturedAt.After(e.lastSample.CapturedAt) {
		return false
	}
	e.lastSample = sample
	return true
}

func (e *Engine) acceptDetail(record fetch.DetailRecord, capturedAt time.Time) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.lastDetail != nil && capturedAt.Before(e.lastDetailAt) {
		return false
	}
	e.lastDetail = record
	e.lastDetailAt = capturedAt
	return true
}

// fail records err, asks for a new login once per auth failure and reports the cycle.
func (e *Engine) fail(ctx context.Context, rep Report, err error) Report {
	rep.Status = StatusFailed
	rep.Err = err
	e.record(err)

	logger := e.cycleLogger(rep)
	if fatal(err) {
		logger.Warn().Err(err).Msg("session expired, login required")
		e.requestReauth(ctx, err)
	} else {
		logger.Warn().Err(err).Str("kind", string(apierr.KindOf(err))).Msg("cycle failed")
	}
	return e.deliver(ctx, rep)
}

func (e *Engine) requestReauth(ctx context.Context, cause error) {
	e.stateMu.Lock()
	already := e.reauthRequested
	e.reauthRequested = true
	e.stateMu.Unlock()

	if already || e.collab.Reauth == nil {
		return
	}
	e.collab.Reauth.RequestReauth(ctx, e.collab.Account, cause)
}

// fatal reports whether err ends the session rather than the cycle.
func fatal(err error) bool {
	var aerr *apierr.Error
	return ierrors.As(err, &aerr) && !aerr.Transient()
}

// record overwrites the error slot. A nil err clears it.
func (e *Engine) record(err error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.errState = apierr.NewState(err, e.nowFunc())
	e.lastFailed = err != nil
}

// settle closes a cycle that succeeded. A vendor rejection the cycle recovered from
// stays visible in the error slot but does not make the engine unavailable.
func (e *Engine) settle(notice error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.errState = apierr.NewState(notice, e.nowFunc())
	e.lastFailed = false
}

func (e *Engine) deliver(ctx context.Context, rep Report) Report {
	e.stateMu.RLock()
	rep.Sample = e.lastSample
	rep.Detail = e.lastDetail
	e.stateMu.RUnlock()

	if e.collab.Reporter != nil {
		if err := e.collab.Reporter.Report(ctx, rep); err != nil {
			logger := e.cycleLogger(rep)
			logger.Err(err).Msg("reporting cycle")
		}
	}
	return rep
}

func (e *Engine) newReport(c Cycle) Report {
	return Report{
		Account: e.collab.Account,
		Cycle:   c,
		CycleID: uuid.New(),
		At:      e.nowFunc(),
	}
}

func (e *Engine) cycleLogger(rep Report) zerolog.Logger {
	return e.logger.With().Str("cycle", string(rep.Cycle)).Str("cycle_id", rep.CycleID.String()).Logger()
}

func (e *Engine) setAuthenticating(v bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.authenticating = v
}

// Session returns a copy of the current session.
func (e *Engine) Session() session.Session {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.session
}

func (e *Engine) State() token.State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.authenticating {
		return token.Authenticating
	}
	return e.tokens.StateOf(e.session)
}

// ErrorState returns the most recent error, or the zero state after a success.
func (e *Engine) ErrorState() apierr.State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.errState
}

// Available is false when the last operation failed or the session needs a new login.
func (e *Engine) Available() bool {
	if e.State() == token.ReauthRequired {
		return false
	}
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return !e.lastFailed && e.session.IsPopulated()
}

func (e *Engine) LastSample() *fetch.WeightSample {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.lastSample
}

func (e *Engine) LastDetail() fetch.DetailRecord {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.lastDetail
}
