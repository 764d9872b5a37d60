package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lakeshift/lakeshift/internal/observability"
)

const DefaultPollInterval = time.Second

type WaitOptions struct {
	Interval time.Duration
	// Timeout bounds the whole wait. Zero disables the deadline.
	Timeout time.Duration
	// MaxAttempts bounds the number of status calls. Zero disables the limit.
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
	Logger      *slog.Logger
}

func (o *WaitOptions) ensureDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = observability.Discard(o.Logger)
}

// Wait polls the engine until the execution reaches a terminal state.
func Wait(ctx context.Context, engine Engine, id ExecutionID, opts WaitOptions) error {
	opts.ensureDefaults()

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = opts.Now().Add(opts.Timeout)
	}

	for attempt := 1; ; attempt++ {
		status, err := engine.Status(ctx, id)
		observability.IncrementQueryPoll()
		if err != nil {
			return fmt.Errorf("get query status: %w", err)
		}

		opts.Logger.DebugContext(ctx, "query status",
			slog.String("execution_id", string(id)),
			slog.String("state", string(status.State)),
			slog.Int("attempt", attempt),
		)

		switch status.State {
		case StateSucceeded:
			observability.ObserveQueryTerminalState(string(status.State))
			return nil
		case StateFailed, StateCancelled:
			observability.ObserveQueryTerminalState(string(status.State))
			opts.Logger.ErrorContext(ctx, "query did not succeed",
				slog.String("execution_id", string(id)),
				slog.String("state", string(status.State)),
				slog.String("reason", status.Reason),
			)
			return &JobError{ExecutionID: id, State: status.State, Reason: status.Reason}
		}

		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w: still %s after %d attempts", ErrPollTimeout, status.State, attempt)
		}
		if !deadline.IsZero() && !opts.Now().Before(deadline) {
			return fmt.Errorf("%w: still %s after %s", ErrPollTimeout, status.State, opts.Timeout)
		}

		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
