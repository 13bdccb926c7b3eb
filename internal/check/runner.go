package check

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dynwatch/dynwatch/internal/checkdef"
	"github.com/dynwatch/dynwatch/internal/clock"
	"github.com/dynwatch/dynwatch/internal/dynect"
	"github.com/dynwatch/dynwatch/internal/metrics"
	"github.com/dynwatch/dynwatch/internal/report"
	"github.com/dynwatch/dynwatch/internal/stats"
)

// TargetPercentile is the fixed percentile the check guards.
const TargetPercentile = 0.95

// SessionClient is the slice of the metering API the runner needs.
type SessionClient interface {
	Authenticate(ctx context.Context) (string, error)
	FetchReport(ctx context.Context, token string, window dynect.Window) (*dynect.Report, error)
	Terminate(ctx context.Context, token string) error
}

// ClientConfig translates a definition spec into session client
// configuration.
func ClientConfig(spec checkdef.Spec) (dynect.Config, error) {
	password, err := spec.ResolvedPassword()
	if err != nil {
		return dynect.Config{}, err
	}
	delay, err := spec.EffectiveRetryDelay()
	if err != nil {
		return dynect.Config{}, err
	}

	cfg := dynect.DefaultConfig(spec.Customer, spec.Username, password)
	if spec.Endpoint != "" {
		cfg.BaseURL = spec.Endpoint
	}
	cfg.MaxRetries = spec.EffectiveMaxRetries()
	cfg.RetryDelay = delay
	cfg.InsecureSkipVerify = spec.InsecureSkipVerify
	return cfg, nil
}

// Runner drives a check definition through the full pipeline: login, fetch,
// parse, percentile, verdict, logout.
type Runner struct {
	client  SessionClient
	clock   clock.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewRunner creates a runner. A nil clk falls back to the real clock; the
// collector may be nil.
func NewRunner(client SessionClient, clk clock.Clock, logger zerolog.Logger, collector *metrics.Collector) *Runner {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Runner{
		client:  client,
		clock:   clk,
		logger:  logger,
		metrics: collector,
	}
}

// Run executes one check run and returns its result, or a classified error
// when the pipeline could not produce a verdict.
func (r *Runner) Run(ctx context.Context, def *checkdef.Check) (*Result, error) {
	runID := uuid.NewString()
	start := r.clock.Now()
	logger := r.logger.With().
		Str("run_id", runID).
		Str("check", def.Metadata.ID).
		Logger()

	timeout, err := def.Spec.EffectiveTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := r.run(ctx, logger, def, runID, start)
	elapsed := r.clock.Now().Sub(start)

	status := StatusUnknown
	if result != nil {
		result.Elapsed = elapsed
		status = result.Verdict.Status
	} else if err != nil {
		status = StatusForError(err)
	}
	if r.metrics != nil {
		r.metrics.ObserveRun(def.Metadata.ID, string(status), elapsed.Seconds())
	}

	if err != nil {
		logger.Error().Err(err).Str("status", string(status)).Msg("check run failed")
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.SetP95(def.Metadata.ID, result.P95)
	}
	logger.Info().
		Str("status", string(status)).
		Float64("p95", result.P95).
		Int("samples", result.Samples).
		Dur("elapsed", elapsed).
		Msg("check run complete")
	return result, nil
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, def *checkdef.Check, runID string, start time.Time) (res *Result, err error) {
	period, err := checkdef.ParsePeriod(def.Spec.Period)
	if err != nil {
		return nil, err
	}
	window := dynect.NewWindow(start, period.Seconds())

	token, err := r.client.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	defer func() {
		// Logout still runs when the run context is already done.
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if terr := r.client.Terminate(tctx, token); terr != nil {
			logger.Warn().Err(terr).Msg("session teardown failed")
			if r.metrics != nil {
				r.metrics.IncTeardownFailure(def.Metadata.ID)
			}
			if res != nil {
				res.LogoutErr = terr
			}
		}
	}()

	rep, err := r.client.FetchReport(ctx, token, window)
	if err != nil {
		return nil, fmt.Errorf("fetch report: %w", err)
	}
	if r.metrics != nil && rep.Attempts > 0 {
		r.metrics.AddRedirectRetries(def.Metadata.ID, rep.Attempts)
	}

	rates, err := report.ParseRates(rep.Body)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(rates))
	for i, v := range rates {
		values[i] = float64(v)
	}

	p95, err := stats.Percentile(values, TargetPercentile)
	if err != nil {
		return nil, fmt.Errorf("percentile: %w", err)
	}

	verdict := Evaluate(p95, def.Spec.Thresholds.Warning, def.Spec.Thresholds.Critical)

	return &Result{
		RunID:    runID,
		CheckID:  def.Metadata.ID,
		Verdict:  verdict,
		P95:      p95,
		Samples:  len(values),
		Window:   window,
		Attempts: rep.Attempts,
	}, nil
}
