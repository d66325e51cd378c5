package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/internal/config"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/sign"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Header and signature parameter names used by the vendor.
const (
	ParamAppID      = "appId"
	ParamPlatform   = "platform"
	ParamTimestamp  = "timestamp"
	ParamVersion    = "version"
	ParamTimeZone   = "timeZone"
	ParamToken      = "token"
	ParamUserID     = "userId"
	ParamAppVersion = "appVersion"
	HeaderSign      = "sign"
)

// Auth identifies the session an authenticated request is signed for.
type Auth struct {
	Token  string
	UserID string
}

// Request is a signed call against the vendor API.
type Request struct {
	Method string
	// Path is relative to the API domain and may carry a query string; query
	// parameters are part of the signature.
	Path string
	// Body is sent as JSON on POST.
	Body any
	Auth *Auth
}

// Client issues signed HTTP calls and decodes the vendor envelope. It never inspects
// business codes; that is the caller's job.
type Client struct {
	cfg     config.VendorConfig
	baseURL string
	http    *http.Client
	signer  sign.Signer
	breaker *gobreaker.CircuitBreaker
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithSigner(s sign.Signer) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

// New creates a client for the API domain in cfg.
func New(cfg config.Config, options ...ClientOption) *Client {
	c := &Client{
		cfg:     cfg,
		baseURL: cfg.GetAPIDomain(),
		logger:  log.Logger,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.GetHTTPTimeout()}
	}
	if c.signer == nil {
		c.signer = sign.NewMD5Signer(cfg.GetAppSecret())
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}

	maxFailures := cfg.GetBreakerMaxFailures()
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lstech-api",
		MaxRequests: 1,
		Timeout:     cfg.GetBreakerOpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// BaseURL returns the API domain requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Now returns the client's clock.
func (c *Client) Now() time.Time {
	return c.nowFunc()
}

// SignedParams returns the parameter set that is both signed and sent as headers.
func (c *Client) SignedParams(query url.Values, auth *Auth) map[string]string {
	params := make(map[string]string, len(query)+8)
	for k := range query {
		params[k] = query.Get(k)
	}
	params[ParamAppID] = c.cfg.GetAppID()
	params[ParamPlatform] = c.cfg.GetPlatform()
	params[ParamTimestamp] = strconv.FormatInt(c.nowFunc().UnixMilli(), 10)
	params[ParamVersion] = c.cfg.GetProtocolVersion()
	if auth != nil && auth.Token != "" && auth.UserID != "" {
		params[ParamTimeZone] = c.cfg.GetTimeZone()
		params[ParamToken] = auth.Token
		params[ParamUserID] = auth.UserID
		params[ParamAppVersion] = c.cfg.GetAppVersion()
	}
	return params
}

// Do sends a signed request. Connection failures and timeouts are network errors, a
// body that is not a JSON envelope is a decode error; any envelope is returned as is.
func (c *Client) Do(ctx context.Context, r Request) (*Envelope, error) {
	u, err := url.Parse(c.baseURL + r.Path)
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("parse url: %w", err))
	}

	params := c.SignedParams(u.Query(), r.Auth)
	signature := c.signer.Sign(params)

	var body io.Reader
	if r.Method == http.MethodPost && r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, apierr.Decode(fmt.Errorf("marshal body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.GetUserAgent())
	// Assigned directly so the vendor's header casing is kept on the wire.
	for k, v := range params {
		req.Header[k] = []string{v}
	}
	req.Header[HeaderSign] = []string{signature}

	return c.send(req)
}

// GetShare issues an unsigned GET in the share-link request shape. The caller supplies
// every header.
func (c *Client) GetShare(ctx context.Context, path string, query url.Values, headers http.Header) (*Envelope, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("parse url: %w", err))
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apierr.Network(fmt.Errorf("new request: %w", err))
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	return c.send(req)
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) send(req *http.Request) (*Envelope, error) {
	start := c.nowFunc()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &rawResponse{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ierrors.ErrCircuitOpen, err)
		}
		c.logger.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("vendor request failed")
		return nil, apierr.Network(err)
	}

	raw := out.(*rawResponse)
	env, err := decodeEnvelope(raw.status, raw.body)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Int("status", raw.status).Msg("vendor response not decodable")
		return nil, err
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", raw.status).
		Str("code", env.Code.String()).
		Dur("duration", c.nowFunc().Sub(start)).
		Msg("vendor request")
	return env, nil
}
