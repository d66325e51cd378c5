package apierr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, apierr.KindNone, apierr.KindOf(nil))
	require.Equal(t, apierr.KindNetwork, apierr.KindOf(apierr.Network(context.DeadlineExceeded)))
	require.Equal(t, apierr.KindDecode, apierr.KindOf(fmt.Errorf("wrapped: %w", apierr.Decode(errors.New("bad json")))))
	require.Equal(t, apierr.KindAPI, apierr.KindOf(apierr.API("1001", "bad request")))
	require.Equal(t, apierr.KindAPI, apierr.KindOf(errors.New("plain")))
	require.True(t, apierr.IsAuthExpired(apierr.AuthExpired("refresh token expired", nil)))
}

func TestError_Unwrap(t *testing.T) {
	err := apierr.Network(context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, err.Transient())
	require.False(t, apierr.AuthExpired("x", nil).Transient())
}

func TestError_Message(t *testing.T) {
	require.Equal(t, "apiError: token invalid (code 2000)", apierr.API("2000", "token invalid").Error())
	require.Equal(t, "network: boom", apierr.Network(errors.New("boom")).Error())
}

func TestState(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.True(t, apierr.NewState(nil, at).IsZero())

	s := apierr.NewState(apierr.API("1", "nope"), at)
	require.Equal(t, apierr.KindAPI, s.Kind)
	require.Equal(t, at, s.OccurredAt)
	require.Contains(t, s.Message, "nope")
}
