package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewGLIntegrityHandler builds the nightly sweep that re-checks the balance
// invariant over every posted entry. The database never accepts an
// unbalanced post through the service layer, so any hit here means manual
// data surgery and warrants a loud log line rather than a task failure.
func NewGLIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		rows, err := pool.Query(ctx, `SELECT e.id, e.entry_no, (SUM(l.debit) - SUM(l.credit))::text
FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
WHERE e.is_locked = TRUE
GROUP BY e.id, e.entry_no
HAVING SUM(l.debit) <> SUM(l.credit)`)
		if err != nil {
			return err
		}
		defer rows.Close()

		found := 0
		for rows.Next() {
			var id, entryNo int64
			var diff string
			if err := rows.Scan(&id, &entryNo, &diff); err != nil {
				return err
			}
			found++
			logger.Error("posted entry out of balance",
				slog.Int64("entry_id", id),
				slog.Int64("entry_no", entryNo),
				slog.String("difference", diff))
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if found == 0 {
			logger.Info("gl integrity sweep clean", slog.String("job", "gl_integrity"))
		}
		return nil
	}
}
