package closing

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parishbooks/parishbooks/internal/ledger/accounts"
)

// AccountActivity is one income or expense account's posted totals for a
// month, with system-sourced entries already excluded.
type AccountActivity struct {
	AccountID int64
	Code      string
	Type      accounts.AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// ClosingRef is a previously posted closing entry header.
type ClosingRef struct {
	ID      int64
	EntryNo int64
}

// Repository reads the posted-line aggregates the closing engine needs.
type Repository interface {
	MonthActivity(ctx context.Context, first, last time.Time) ([]AccountActivity, error)
	PostedClosingEntries(ctx context.Context, reference string) ([]ClosingRef, error)
	HasPostedReversal(ctx context.Context, closingID int64) (bool, error)
}

// systemModules never feed back into a close computation.
var systemModules = []string{"opening", "closing", "reversal"}

// PgRepository implements Repository against postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs PgRepository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) MonthActivity(ctx context.Context, first, last time.Time) ([]AccountActivity, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.type, SUM(l.debit)::text, SUM(l.credit)::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN gl_accounts a ON a.id = l.account_id
WHERE e.is_locked = TRUE
  AND e.entry_date BETWEEN $1 AND $2
  AND COALESCE(e.source_module,'') <> ALL($3)
  AND a.type IN ('income','expense')
GROUP BY a.id, a.code, a.type
ORDER BY a.code ASC`, first, last, systemModules)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var act AccountActivity
		var debitStr, creditStr string
		if err := rows.Scan(&act.AccountID, &act.Code, &act.Type, &debitStr, &creditStr); err != nil {
			return nil, err
		}
		if act.Debit, err = decimal.NewFromString(debitStr); err != nil {
			return nil, err
		}
		if act.Credit, err = decimal.NewFromString(creditStr); err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

func (r *PgRepository) PostedClosingEntries(ctx context.Context, reference string) ([]ClosingRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_no FROM journal_entries
WHERE reference_no = $1 AND is_locked = TRUE ORDER BY id ASC`, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClosingRef
	for rows.Next() {
		var ref ClosingRef
		if err := rows.Scan(&ref.ID, &ref.EntryNo); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *PgRepository) HasPostedReversal(ctx context.Context, closingID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries
WHERE source_module = 'reversal' AND source_id = $1 AND is_locked = TRUE)`,
		strconv.FormatInt(closingID, 10)).Scan(&exists)
	return exists, err
}
