package poller_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/fetch"
	"github.com/jrsteele09/go-lstech-balance/internal/config"
	"github.com/jrsteele09/go-lstech-balance/poller"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/jrsteele09/go-lstech-balance/token"
	"github.com/jrsteele09/go-lstech-balance/transport"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const (
	loginEnvelope = `{"code":"0","msg":"success","data":{
		"accessToken":"access-1","refreshToken":"refresh-1",
		"accessTokenExpire":7200,"refreshTokenExpire":2592000,
		"uid":"10001","nickname":"jo",
		"memberList":[{"memberId":"20002","myself":"1"}]}}`
	summaryEnvelope = `{"code":"0","msg":"success","data":[
		{"weight":"70.10","timestamp":1709280000000,"rawDataId":"555"}]}`
	historyEnvelope = `{"code":"0","msg":"success","data":{"historyDataBeanList":[
		{"measureId":"m-1","createTime":1709280000000}]}}`
	detailEnvelope  = `{"code":"0","msg":"success","data":{"bmi":22.4,"headPictureUrl":"https://img"}}`
	okEnvelope      = `{"code":"0","msg":"success"}`
	invalidEnvelope = `{"code":"2000","msg":"token invalid"}`
)

// fakeVendor serves canned envelopes per path and records request bodies.
type fakeVendor struct {
	mu        sync.Mutex
	responses map[string]string
	delays    map[string]time.Duration
	bodies    map[string][]map[string]any
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		responses: map[string]string{
			"/account/login":               loginEnvelope,
			"/account/refreshToken":        `{"code":"0","msg":"success","data":{"accessToken":"access-2","accessTokenExpire":7200}}`,
			"/balance/claim/data/get":      summaryEnvelope,
			"/balance/claim/data/own":      okEnvelope,
			"/balance/history/data/get":    historyEnvelope,
			"/balance/share/h5/data/share": detailEnvelope,
		},
		delays: map[string]time.Duration{},
		bodies: map[string][]map[string]any{},
	}
}

func (v *fakeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	v.mu.Lock()
	v.bodies[r.URL.Path] = append(v.bodies[r.URL.Path], body)
	resp, found := v.responses[r.URL.Path]
	delay := v.delays[r.URL.Path]
	v.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		resp = `{"code":"404","msg":"no route"}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(resp))
}

func (v *fakeVendor) set(path, envelope string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.responses[path] = envelope
}

func (v *fakeVendor) delay(path string, d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delays[path] = d
}

func (v *fakeVendor) hits(path string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.bodies[path])
}

func (v *fakeVendor) body(path string, i int) map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bodies[path][i]
}

type scenario struct {
	vendor *fakeVendor
	clock  *clock
	engine *poller.Engine
	collaborators
}

func newScenario(t *testing.T, autoClaim bool) *scenario {
	t.Helper()

	vendor := newFakeVendor()
	srv := httptest.NewServer(vendor)
	t.Cleanup(srv.Close)

	v := viper.New()
	v.Set("vendor.api_domain", srv.URL)
	v.Set("http.timeout", "100ms")
	cfg := config.FromViper(v)

	clk := &clock{now: t0}
	client := transport.New(cfg, transport.WithNowFunc(clk.Now))
	tokens := token.New(client, cfg, token.WithNowFunc(clk.Now))
	fetcher := fetch.New(client, tokens, cfg, fetch.WithNowFunc(clk.Now))

	c, collab := newCollaborators()
	engine := poller.New(tokens, fetcher, collab, poller.WithAutoClaim(autoClaim), poller.WithNowFunc(clk.Now))
	require.NoError(t, engine.Login(context.Background(), "jo@example.com", "secret123"))

	return &scenario{vendor: vendor, clock: clk, engine: engine, collaborators: c}
}

func TestScenarioLoginPopulatesSession(t *testing.T) {
	sc := newScenario(t, false)

	s := sc.engine.Session()
	require.True(t, s.IsPopulated())
	require.Equal(t, "10001", s.UID)
	require.Equal(t, "20002", s.MemberID)
	require.Equal(t, token.Authenticated, sc.engine.State())
	require.True(t, sc.engine.Available())
	require.Equal(t, 1, sc.persister.count(), "login is persisted")
}

func TestScenarioNewSampleIsClaimed(t *testing.T) {
	sc := newScenario(t, true)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusUpdated, rep.Status)
	require.InDelta(t, 70.1, rep.Sample.WeightKg, 0.001)
	require.Equal(t, "555", rep.Sample.RawSampleID)
	sc.engine.Wait()

	require.Equal(t, 1, sc.vendor.hits("/balance/claim/data/own"))
	claim := sc.vendor.body("/balance/claim/data/own", 0)
	require.Equal(t, "555", claim["rawDataId"])
	require.Equal(t, "20002", claim["memberId"])

	details := sc.reporter.byCycle(poller.CycleDetail)
	require.Len(t, details, 1)
	require.Equal(t, poller.StatusUpdated, details[0].Status)
	require.Equal(t, json.Number("22.4"), details[0].Detail["bmi"], "detail values pass through unmodified")
	require.NotContains(t, details[0].Detail.Presentable(), "headPictureUrl")
}

func TestScenarioSessionInvalidOnRefresh(t *testing.T) {
	sc := newScenario(t, false)
	sc.vendor.set("/account/refreshToken", invalidEnvelope)
	sc.clock.Advance(2 * time.Hour)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusFailed, rep.Status)
	require.True(t, apierr.IsAuthExpired(rep.Err))
	require.Zero(t, sc.vendor.hits("/balance/claim/data/get"), "no fetch after the refresh is rejected")
	require.Equal(t, 1, sc.reauth.count())
	require.Equal(t, token.ReauthRequired, sc.engine.State())
	require.False(t, sc.engine.Available())
	require.Equal(t, apierr.KindAuthExpired, sc.engine.ErrorState().Kind)

	refreshes := sc.vendor.hits("/account/refreshToken")
	rep = sc.engine.RunSummaryCycle(context.Background())
	require.True(t, apierr.IsAuthExpired(rep.Err))
	require.Equal(t, 1, sc.reauth.count(), "reauth requested once per occurrence")
	require.Equal(t, refreshes, sc.vendor.hits("/account/refreshToken"))

	require.NoError(t, sc.engine.Login(context.Background(), "jo@example.com", "secret123"))
	require.True(t, sc.engine.Available())
	sc.vendor.set("/account/refreshToken", invalidEnvelope)
	sc.clock.Advance(2 * time.Hour)
	sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, 2, sc.reauth.count(), "a new session can fail again")
}

func TestScenarioRefreshTokenExpired(t *testing.T) {
	sc := newScenario(t, false)
	sc.clock.Advance(30 * 24 * time.Hour)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.True(t, apierr.IsAuthExpired(rep.Err))
	require.Zero(t, sc.vendor.hits("/account/refreshToken"))
	require.Zero(t, sc.vendor.hits("/balance/claim/data/get"))
	require.Equal(t, 1, sc.reauth.count())
}

func TestScenarioTimeout(t *testing.T) {
	sc := newScenario(t, false)
	before := sc.engine.Session()
	sc.vendor.delay("/balance/claim/data/get", time.Second)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusFailed, rep.Status)
	require.Equal(t, apierr.KindNetwork, apierr.KindOf(rep.Err))
	require.Equal(t, before, sc.engine.Session(), "session unchanged")
	require.Zero(t, sc.reauth.count())

	sc.vendor.delay("/balance/claim/data/get", 0)
	rep = sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusUpdated, rep.Status, "next cycle retries independently")
	sc.engine.Wait()
}

func TestScenarioPersistsOnlyChangedTokens(t *testing.T) {
	sc := newScenario(t, false)
	sc.vendor.set("/balance/claim/data/get", `{"code":"0","msg":"success","data":[]}`)

	sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, 1, sc.persister.count(), "no refresh, nothing written")

	sc.clock.Advance(2 * time.Hour)
	sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, 2, sc.persister.count())
	require.Equal(t, "access-2", sc.engine.Session().AccessToken)

	sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, 2, sc.persister.count())
}

func TestScenarioSummarySessionInvalidHeals(t *testing.T) {
	sc := newScenario(t, false)
	sc.vendor.set("/balance/claim/data/get", invalidEnvelope)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusNoData, rep.Status)
	require.NoError(t, rep.Err)
	require.Equal(t, 1, sc.vendor.hits("/account/refreshToken"), "forced refresh")
	require.Equal(t, "access-2", sc.engine.Session().AccessToken)
	require.Zero(t, sc.reauth.count())
	require.True(t, sc.engine.Available())

	errState := sc.engine.ErrorState()
	require.Equal(t, apierr.KindAPI, errState.Kind)
	require.Contains(t, errState.Message, "token invalid")

	sc.vendor.set("/balance/claim/data/get", summaryEnvelope)
	require.Equal(t, poller.StatusUpdated, sc.engine.RunSummaryCycle(context.Background()).Status)
	require.True(t, sc.engine.ErrorState().IsZero())
	sc.engine.Wait()
}

func TestScenarioDeclinedClaimStillReadsDetail(t *testing.T) {
	sc := newScenario(t, true)
	sc.vendor.set("/balance/claim/data/own", `{"code":"3001","msg":"already claimed"}`)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusUpdated, rep.Status)
	sc.engine.Wait()

	require.Equal(t, 1, sc.vendor.hits("/balance/claim/data/own"))
	require.Equal(t, 1, sc.vendor.hits("/balance/history/data/get"))
	require.Equal(t, 1, sc.vendor.hits("/balance/share/h5/data/share"))

	details := sc.reporter.byCycle(poller.CycleDetail)
	require.Len(t, details, 1)
	require.Equal(t, poller.StatusUpdated, details[0].Status)
	require.NoError(t, details[0].Err)
	require.True(t, sc.engine.Available())
}

func TestScenarioClaimOnExpiredSessionStopsDetail(t *testing.T) {
	sc := newScenario(t, true)
	sc.vendor.set("/balance/claim/data/own", invalidEnvelope)
	sc.vendor.set("/account/refreshToken", invalidEnvelope)

	require.Equal(t, poller.StatusUpdated, sc.engine.RunSummaryCycle(context.Background()).Status)
	sc.engine.Wait()

	details := sc.reporter.byCycle(poller.CycleDetail)
	require.Len(t, details, 1)
	require.Equal(t, poller.StatusFailed, details[0].Status)
	require.True(t, apierr.IsAuthExpired(details[0].Err))
	require.Zero(t, sc.vendor.hits("/balance/history/data/get"))
	require.Equal(t, 1, sc.reauth.count())
}

func TestScenarioPicksUpOutsideLogin(t *testing.T) {
	sc := newScenario(t, false)
	sc.vendor.set("/account/refreshToken", invalidEnvelope)
	sc.clock.Advance(2 * time.Hour)

	rep := sc.engine.RunSummaryCycle(context.Background())
	require.True(t, apierr.IsAuthExpired(rep.Err))
	require.Equal(t, token.ReauthRequired, sc.engine.State())

	rep = sc.engine.RunSummaryCycle(context.Background())
	require.True(t, apierr.IsAuthExpired(rep.Err), "stored state is the one already rejected")
	require.Equal(t, 1, sc.reauth.count())

	relogin := session.New(session.Grant{
		UID:             "10001",
		MemberID:        "20002",
		Nickname:        "jo",
		AccessToken:     "access-9",
		AccessLifetime:  2 * time.Hour,
		RefreshToken:    "refresh-9",
		RefreshLifetime: 30 * 24 * time.Hour,
	}, sc.clock.Now())
	require.NoError(t, sc.persister.Persist(context.Background(), "jo@example.com", relogin.Persisted()))

	rep = sc.engine.RunSummaryCycle(context.Background())
	require.Equal(t, poller.StatusUpdated, rep.Status)
	require.Equal(t, "access-9", sc.engine.Session().AccessToken)
	require.Equal(t, token.Authenticated, sc.engine.State())
	require.True(t, sc.engine.Available())
	sc.engine.Wait()
}

func TestScenarioTokenSource(t *testing.T) {
	sc := newScenario(t, false)

	tok, err := sc.engine.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)

	sc.clock.Advance(2 * time.Hour)
	tok, err = sc.engine.Token()
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
}
