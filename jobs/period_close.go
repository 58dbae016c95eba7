package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/parishbooks/parishbooks/internal/ledger/journal"
	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

// PeriodCloser is the slice of the closing engine the worker drives.
type PeriodCloser interface {
	ClosePeriod(ctx context.Context, year, month int, equityAccountID int64, note string, createdBy *int64) (journal.Entry, error)
	ReclosePeriod(ctx context.Context, year, month int, equityAccountID int64, note string, createdBy *int64) (journal.Entry, error)
}

// NewPeriodCloseHandler builds the TaskTypePeriodClose handler. Busy errors
// are returned as-is so asynq retries after its backoff; validation and
// conflict errors are permanent and skip retry.
func NewPeriodCloseHandler(closer PeriodCloser, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PeriodClosePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("period close payload: %v: %w", err, asynq.SkipRetry)
		}

		run := closer.ClosePeriod
		if payload.Reclose {
			run = closer.ReclosePeriod
		}
		entry, err := run(ctx, payload.Year, payload.Month, payload.EquityAccountID, payload.Note, payload.RequestedBy)
		if err != nil {
			if errors.Is(err, shared.ErrBusy) {
				logger.Info("period close busy, will retry",
					slog.String("run_id", payload.RunID),
					slog.Int("year", payload.Year),
					slog.Int("month", payload.Month))
				return err
			}
			if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConflict) {
				logger.Warn("period close rejected",
					slog.String("run_id", payload.RunID),
					slog.Int("year", payload.Year),
					slog.Int("month", payload.Month),
					slog.Any("error", err))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}

		logger.Info("period closed",
			slog.String("run_id", payload.RunID),
			slog.Int("year", payload.Year),
			slog.Int("month", payload.Month),
			slog.Int64("entry_no", entry.EntryNo),
			slog.Bool("reclose", payload.Reclose))
		return nil
	}
}
