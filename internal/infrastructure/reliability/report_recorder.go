package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/pkg/circuitbreaker"
	"pairline/pkg/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportRecorderWrapper persists abuse reports through the repositories,
// retrying transient failures behind a circuit breaker.
type ReportRecorderWrapper struct {
	reports ports.ReportRepository
	users   ports.UserRepository // optional
	logger  *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
	now            func() time.Time
}

func NewReportRecorderWrapper(
	reports ports.ReportRepository,
	users ports.UserRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *ReportRecorderWrapper {
	retryConfig.Permanent = append(retryConfig.Permanent, circuitbreaker.ErrOpen, context.Canceled)

	w := &ReportRecorderWrapper{
		reports:        reports,
		users:          users,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
		now:            time.Now,
	}
	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("report store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

// RecordReport implements ports.ReportRecorder.
func (w *ReportRecorderWrapper) RecordReport(ctx context.Context, reported, reporter domain.UserID, reason string) error {
	report := &domain.Report{
		ID:         uuid.NewString(),
		ReportedID: reported,
		ReporterID: reporter,
		Reason:     reason,
		CreatedAt:  w.now(),
	}

	err := retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(func() error {
			return w.reports.Save(ctx, report)
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			w.logger.Warnw("report store circuit open, report not saved", "reported_id", reported)
		}
		return fmt.Errorf("%w: %v", domain.ErrReportStoreFailure, err)
	}

	if w.users == nil {
		return nil
	}
	count, err := retry.Do(ctx, w.retryConfig, func() (int64, error) {
		var n int64
		err := w.circuitBreaker.Execute(func() error {
			var err error
			n, err = w.users.IncrementReportCount(ctx, reported)
			return err
		})
		return n, err
	})
	if err != nil {
		// The report itself is stored; the counter can be rebuilt from it.
		w.logger.Warnw("failed to increment report counter",
			"reported_id", reported,
			"error", err,
		)
		return nil
	}

	w.logger.Infow("report recorded",
		"report_id", report.ID,
		"reported_id", reported,
		"reporter_id", reporter,
		"report_count", count,
	)
	return nil
}

func (w *ReportRecorderWrapper) State() circuitbreaker.State {
	return w.circuitBreaker.State()
}
