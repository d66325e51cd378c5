// Package fetch reads measurement data for an authenticated session.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/internal/config"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/jrsteele09/go-lstech-balance/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	pathLatestSummary = "/balance/claim/data/get"
	pathClaim         = "/balance/claim/data/own"
	pathHistory       = "/balance/history/data/get"
	pathShareDetail   = "/balance/share/h5/data/share"
	pathDetailPage    = "/h5/h5V3/balance/bodydetail.html"

	// historyFromStart asks the history endpoint for the newest entries.
	historyFromStart = -1
)

// Client is the transport surface the fetcher needs.
type Client interface {
	Do(ctx context.Context, r transport.Request) (*transport.Envelope, error)
	GetShare(ctx context.Context, path string, query url.Values, headers http.Header) (*transport.Envelope, error)
}

// TokenRefresher keeps a session's access token usable.
type TokenRefresher interface {
	EnsureFresh(ctx context.Context, s session.Session, force bool) (session.Session, error)
}

var _ Client = (*transport.Client)(nil)

// Fetcher issues the measurement endpoints. Every signed call first ensures the token
// is fresh and returns the possibly refreshed session alongside its result.
type Fetcher struct {
	client  Client
	tokens  TokenRefresher
	cfg     config.VendorConfig
	nowFunc func() time.Time
	logger  zerolog.Logger
	loc     *time.Location
}

type Option func(*Fetcher)

func WithNowFunc(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

func New(client Client, tokens TokenRefresher, cfg config.VendorConfig, options ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		tokens: tokens,
		cfg:    cfg,
		logger: log.Logger,
	}

	for _, opt := range options {
		opt(f)
	}

	if f.nowFunc == nil {
		f.nowFunc = time.Now
	}

	loc, err := time.LoadLocation(cfg.GetTimeZone())
	if err != nil {
		f.logger.Warn().Err(err).Str("time_zone", cfg.GetTimeZone()).Msg("unknown time zone, history times read as UTC")
		loc = time.UTC
	}
	f.loc = loc
	return f
}

// LatestSummary returns the newest reading, or nil when the account has none.
func (f *Fetcher) LatestSummary(ctx context.Context, s session.Session) (*WeightSample, session.Session, error) {
	env, s, err := f.call(ctx, s, pathLatestSummary, map[string]string{"memberId": s.MemberID})
	if err != nil || env == nil {
		return nil, s, err
	}

	var rows []json.RawMessage
	if err := env.DecodeData(&rows); err != nil {
		return nil, s, err
	}
	if len(rows) == 0 {
		return nil, s, nil
	}
	sample, err := decodeSample(rows[0])
	return sample, s, err
}

// ClaimOwnership associates a raw reading with the session's member and reports
// whether the vendor acknowledged it. A claim the vendor declines is not an error.
func (f *Fetcher) ClaimOwnership(ctx context.Context, s session.Session, rawSampleID string) (bool, session.Session, error) {
	env, s, err := f.call(ctx, s, pathClaim, map[string]string{
		"memberId":  s.MemberID,
		"rawDataId": rawSampleID,
	})
	if apierr.KindOf(err) == apierr.KindAPI {
		f.logger.Debug().Err(err).Str("raw_data_id", rawSampleID).Msg("claim declined")
		return false, s, nil
	}
	if err != nil || env == nil {
		return false, s, err
	}
	return true, s, nil
}

type historyData struct {
	HistoryDataBeanList []json.RawMessage `json:"historyDataBeanList"`
}

// HistoryHead returns the most recent history entry, or nil when there is none.
func (f *Fetcher) HistoryHead(ctx context.Context, s session.Session) (*HistoryEntry, session.Session, error) {
	env, s, err := f.call(ctx, s, pathHistory, map[string]any{
		"currentLatestTimestamp": historyFromStart,
		"memberId":               s.MemberID,
	})
	if err != nil || env == nil {
		return nil, s, err
	}

	var data historyData
	if err := env.DecodeData(&data); err != nil {
		return nil, s, err
	}
	if len(data.HistoryDataBeanList) == 0 {
		return nil, s, nil
	}
	entry, err := decodeHistory(data.HistoryDataBeanList[0], f.loc)
	return entry, s, err
}

// Detail reads the body composition record of a measurement through the share-link
// endpoint. It is not signed and does not touch the session's tokens.
func (f *Fetcher) Detail(ctx context.Context, s session.Session, measureID string) (DetailRecord, error) {
	query := url.Values{}
	query.Set("memberId", s.MemberID)
	query.Set("measureId", measureID)
	query.Set("userId", s.UID)

	env, err := f.client.GetShare(ctx, pathShareDetail, query, f.shareHeaders(s, measureID))
	if err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return nil, err
	}

	var record DetailRecord
	if err := env.DecodeData(&record); err != nil {
		return nil, err
	}
	return record, nil
}

// call sends a signed POST. A session invalid answer forces one refresh. When the
// refresh succeeds the answer is handed to the context's notice func and call returns
// no envelope and no error, so the caller reports no data and the next cycle runs with
// the new token. A failed refresh is returned as is.
func (f *Fetcher) call(ctx context.Context, s session.Session, path string, body any) (*transport.Envelope, session.Session, error) {
	s, err := f.tokens.EnsureFresh(ctx, s, false)
	if err != nil {
		return nil, s, err
	}

	env, err := f.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Auth:   &transport.Auth{Token: s.AccessToken, UserID: s.UID},
	})
	if err != nil {
		return nil, s, err
	}

	switch env.Class() {
	case transport.ClassSuccess:
		return env, s, nil
	case transport.ClassSessionInvalid:
		f.logger.Warn().Str("path", path).Str("uid", s.UID).Msg("session invalid, forcing token refresh")
		healed, rerr := f.tokens.EnsureFresh(ctx, s, true)
		if rerr != nil {
			return nil, healed, rerr
		}
		notify(ctx, env.Err())
		return nil, healed, nil
	default:
		f.logger.Debug().Str("path", path).Str("code", env.Code.String()).Str("msg", env.Msg).Msg("vendor rejected request")
		return nil, s, env.Err()
	}
}

// shareHeaders mimics the vendor's embedded web view. Accept-Encoding is left to the
// HTTP client so compressed bodies are decoded transparently.
func (f *Fetcher) shareHeaders(s session.Session, measureID string) http.Header {
	referer := fmt.Sprintf("%s%s?measureId=%s&memberId=%s&userId=%s&deviceType=balance",
		f.cfg.GetAPIDomain(), pathDetailPage,
		url.QueryEscape(measureID), url.QueryEscape(s.MemberID), url.QueryEscape(s.UID))

	h := http.Header{}
	set := func(k, v string) { h[k] = []string{v} }
	set("appId", f.cfg.GetAppID())
	set("sec-ch-ua-platform", `"Android"`)
	set("timestamp", strconv.FormatInt(f.nowFunc().UnixMilli(), 10))
	set("timeZone", f.cfg.GetTimeZone())
	set("sec-ch-ua", `"Not)A;Brand";v="8", "Chromium";v="138", "Android WebView";v="138"`)
	set("sec-ch-ua-mobile", "?1")
	set("appVersion", f.cfg.GetShareAppVersion())
	set("User-Agent", f.cfg.GetShareUserAgent())
	set("userId", s.UID)
	set("LAISIH5", "LAISIH5")
	set("version", f.cfg.GetProtocolVersion())
	set("platform", f.cfg.GetPlatform())
	set("Accept", "*/*")
	set("X-Requested-With", "com.lstech.rehealth")
	set("Sec-Fetch-Site", "same-origin")
	set("Sec-Fetch-Mode", "cors")
	set("Sec-Fetch-Dest", "empty")
	set("Referer", referer)
	set("Accept-Language", "zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	return h
}

