package sink

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-lstech-balance/apierr"
	"github.com/jrsteele09/go-lstech-balance/poller"
	"github.com/rs/zerolog"
)

// LogReporter writes every report to a zerolog logger.
type LogReporter struct {
	logger zerolog.Logger
}

var _ poller.Reporter = (*LogReporter)(nil)

func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(_ context.Context, rep poller.Report) error {
	var ev *zerolog.Event
	switch rep.Status {
	case poller.StatusFailed:
		ev = r.logger.Warn().Err(rep.Err).Str("kind", string(apierr.KindOf(rep.Err)))
	case poller.StatusUpdated:
		ev = r.logger.Info()
	default:
		ev = r.logger.Debug()
	}

	ev = ev.Str("account", rep.Account).
		Str("cycle", string(rep.Cycle)).
		Str("cycle_id", rep.CycleID.String()).
		Str("status", string(rep.Status))
	if rep.Sample != nil {
		ev = ev.Float64("weight_kg", rep.Sample.WeightKg).
			Time("captured_at", rep.Sample.CapturedAt).
			Str("raw_sample_id", rep.Sample.RawSampleID)
	}
	if rep.Cycle == poller.CycleDetail && rep.Detail != nil {
		ev = ev.Interface("detail", rep.Detail.Presentable())
	}
	ev.Msg("cycle report")
	return nil
}

// Multi fans a report out to several reporters. Every reporter is called; their
// errors are joined.
type Multi []poller.Reporter

var _ poller.Reporter = Multi(nil)

func (m Multi) Report(ctx context.Context, rep poller.Report) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogReauthRequester asks the operator, through the log, to log in again.
type LogReauthRequester struct {
	logger zerolog.Logger
	hint   string
}

var _ poller.ReauthRequester = (*LogReauthRequester)(nil)

// NewLogReauthRequester logs hint alongside every request, typically the command to run.
func NewLogReauthRequester(logger zerolog.Logger, hint string) *LogReauthRequester {
	return &LogReauthRequester{logger: logger, hint: hint}
}

func (r *LogReauthRequester) RequestReauth(_ context.Context, account string, cause error) {
	r.logger.Error().Err(cause).Str("account", account).Str("hint", r.hint).Msg("login expired, reauthentication required")
}
