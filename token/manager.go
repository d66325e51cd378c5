// Package token owns the login and refresh lifecycle of a vendor session.
package token

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/internal/config"
	ierrors "github.com/jrsteele09/go-lstech-balance/internal/errors"
	"github.com/jrsteele09/go-lstech-balance/internal/utils"
	"github.com/jrsteele09/go-lstech-balance/session"
	"github.com/jrsteele09/go-lstech-balance/sign"
	"github.com/jrsteele09/go-lstech-balance/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	pathSendCode     = "/account/verificationMsg"
	pathLogin        = "/account/login"
	pathQuickLogin   = "/account/quickLogin"
	pathRefreshToken = "/account/refreshToken"

	phoneNumberLength = 11
	selfMemberFlag    = "1"
)

// ErrCodeResent is returned by QuickLogin when no code was supplied and a new one was
// sent instead.
var ErrCodeResent = errors.New("verification code resent")

// Doer sends a signed request to the vendor API.
type Doer interface {
	Do(ctx context.Context, r transport.Request) (*transport.Envelope, error)
}

var _ Doer = (*transport.Client)(nil)

// Manager performs logins and token refreshes. It holds no session of its own: every
// operation takes the current session and returns the next one.
type Manager struct {
	client  Doer
	cfg     config.VendorConfig
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(client Doer, cfg config.VendorConfig, options ...ManagerOption) *Manager {
	m := &Manager{
		client: client,
		cfg:    cfg,
		logger: log.Logger,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// Now returns the manager's clock.
func (m *Manager) Now() time.Time {
	return m.nowFunc()
}

// StateOf reports where s stands in the token lifecycle right now.
func (m *Manager) StateOf(s session.Session) State {
	return stateAt(s, m.nowFunc())
}

// SendVerificationCode asks the backend to text a login code to phone.
func (m *Manager) SendVerificationCode(ctx context.Context, phone string) error {
	env, err := m.client.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   pathSendCode + "?phoneNumber=" + url.QueryEscape(phone),
	})
	if err != nil {
		return err
	}
	return env.Err()
}

// Login authenticates with an email address or an 11 digit phone number and a password.
func (m *Manager) Login(ctx context.Context, account, password string) (session.Session, error) {
	body := map[string]string{
		"appId":    m.cfg.GetAppID(),
		"deviceId": DeviceID(account),
		"password": sign.Digest(password),
	}
	switch {
	case strings.Contains(account, "@"):
		body["email"] = account
	case len(account) == phoneNumberLength:
		body["phoneNumber"] = account
	default:
		return session.Empty(), &apierr.Error{Kind: apierr.KindAPI, Message: "login", Err: ierrors.ErrInvalidAccount}
	}
	return m.authenticate(ctx, pathLogin, body)
}

// QuickLogin authenticates with a texted code. An empty code re-sends the code and
// returns ErrCodeResent.
func (m *Manager) QuickLogin(ctx context.Context, phone, code string) (session.Session, error) {
	if code == "" {
		if err := m.SendVerificationCode(ctx, phone); err != nil {
			return session.Empty(), err
		}
		return session.Empty(), ErrCodeResent
	}
	return m.authenticate(ctx, pathQuickLogin, map[string]string{
		"appId":            m.cfg.GetAppID(),
		"deviceId":         DeviceID(phone),
		"phoneNumber":      phone,
		"verificationCode": code,
	})
}

type loginMember struct {
	MemberID utils.FlexString `json:"memberId"`
	Myself   utils.FlexString `json:"myself"`
}

type loginData struct {
	AccessToken        string           `json:"accessToken"`
	RefreshToken       string           `json:"refreshToken"`
	AccessTokenExpire  utils.FlexInt    `json:"accessTokenExpire"`
	RefreshTokenExpire utils.FlexInt    `json:"refreshTokenExpire"`
	UID                utils.FlexString `json:"uid"`
	Nickname           string           `json:"nickname"`
	MemberList         []loginMember    `json:"memberList"`
}

func (m *Manager) authenticate(ctx context.Context, path string, body map[string]string) (session.Session, error) {
	env, err := m.client.Do(ctx, transport.Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return session.Empty(), err
	}
	if err := env.Err(); err != nil {
		m.logger.Warn().Str("code", env.Code.String()).Str("msg", env.Msg).Msg("login rejected")
		return session.Empty(), err
	}

	var data loginData
	if err := env.DecodeData(&data); err != nil {
		return session.Empty(), err
	}
	if data.AccessToken == "" || data.RefreshToken == "" || data.UID == "" {
		return session.Empty(), &apierr.Error{Kind: apierr.KindDecode, Message: "login response", Err: ierrors.ErrMissingTokens}
	}

	var memberID string
	for _, member := range data.MemberList {
		if member.Myself.String() == selfMemberFlag {
			memberID = member.MemberID.String()
			break
		}
	}
	if memberID == "" {
		return session.Empty(), &apierr.Error{Kind: apierr.KindDecode, Message: "login response", Err: ierrors.ErrNoSelfMember}
	}

	s := session.New(session.Grant{
		UID:             data.UID.String(),
		MemberID:        memberID,
		Nickname:        data.Nickname,
		AccessToken:     data.AccessToken,
		AccessLifetime:  time.Duration(data.AccessTokenExpire) * time.Second,
		RefreshToken:    data.RefreshToken,
		RefreshLifetime: time.Duration(data.RefreshTokenExpire) * time.Second,
	}, m.nowFunc())

	m.logger.Info().Str("uid", s.UID).Str("member_id", s.MemberID).Msg("logged in")
	return s, nil
}

type refreshData struct {
	AccessToken       string        `json:"accessToken"`
	AccessTokenExpire utils.FlexInt `json:"accessTokenExpire"`
}

// EnsureFresh makes sure s carries a usable access token.
//
// A refresh token past its margin fails with an auth expired error and no network call.
// An access token inside its margin is left alone unless force is set. Otherwise the
// refresh token is exchanged. A session invalid answer from the backend is auth expired;
// any other failure is transient and leaves s unchanged.
func (m *Manager) EnsureFresh(ctx context.Context, s session.Session, force bool) (session.Session, error) {
	switch {
	case s.IsEmpty():
		return s, apierr.AuthExpired("not logged in", ierrors.ErrSessionEmpty)
	case s.ReauthRequired:
		return s, apierr.AuthExpired("session rejected by backend", ierrors.ErrReauthRequired)
	}

	now := m.nowFunc()
	if s.RefreshExpired(now) {
		m.logger.Warn().Str("uid", s.UID).Time("refresh_expires_at", s.RefreshTokenExpiresAt).Msg("refresh token expired")
		return s.Invalidated(), apierr.AuthExpired("refresh token expired", ierrors.ErrRefreshTokenExpired)
	}
	if !force && !s.AccessDue(now) {
		return s, nil
	}

	env, err := m.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   pathRefreshToken,
		Body: map[string]string{
			"refreshToken": s.RefreshToken,
			"uid":          s.UID,
		},
	})
	if err != nil {
		return s, err
	}

	switch env.Class() {
	case transport.ClassSessionInvalid:
		m.logger.Warn().Str("uid", s.UID).Str("msg", env.Msg).Msg("refresh rejected, session invalid")
		return s.Invalidated(), &apierr.Error{
			Kind:    apierr.KindAuthExpired,
			Code:    env.Code.String(),
			Message: env.Msg,
			Err:     ierrors.ErrSessionInvalid,
		}
	case transport.ClassFailure:
		return s, env.Err()
	}

	var data refreshData
	if err := env.DecodeData(&data); err != nil {
		return s, err
	}
	if data.AccessToken == "" {
		return s, &apierr.Error{Kind: apierr.KindDecode, Message: "refresh response", Err: ierrors.ErrMissingTokens}
	}

	refreshed := s.WithAccess(data.AccessToken, time.Duration(data.AccessTokenExpire)*time.Second, m.nowFunc())
	m.logger.Debug().Str("uid", s.UID).Str("token", session.Redact(refreshed.AccessToken)).Time("expires_at", refreshed.AccessTokenExpiresAt).Msg("access token refreshed")
	return refreshed, nil
}
