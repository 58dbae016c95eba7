package books

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads posted lines for the book projections.
type Repository interface {
	ListPostedLines(ctx context.Context, from, to *time.Time) ([]PostedLine, error)
}

// PgRepository implements Repository against postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs PgRepository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// ListPostedLines returns posted lines joined to entry headers and accounts,
// ordered the way every book consumes them: entry date, entry number, line
// number.
func (r *PgRepository) ListPostedLines(ctx context.Context, from, to *time.Time) ([]PostedLine, error) {
	where := []string{"e.is_locked = TRUE"}
	args := []any{}
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("e.entry_date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("e.entry_date <= $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.entry_no, e.entry_date, COALESCE(e.memo,''), COALESCE(e.reference_no,''),
l.line_no, a.id, a.code, a.name, a.type, a.normal_side, a.is_cash,
COALESCE(l.description,''), l.debit::text, l.credit::text
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN gl_accounts a ON a.id = l.account_id
WHERE `+strings.Join(where, " AND ")+`
ORDER BY e.entry_date ASC, e.entry_no ASC, l.line_no ASC, l.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostedLine
	for rows.Next() {
		var line PostedLine
		var debitStr, creditStr string
		if err := rows.Scan(&line.EntryID, &line.EntryNo, &line.EntryDate, &line.Memo, &line.ReferenceNo,
			&line.LineNo, &line.AccountID, &line.AccountCode, &line.AccountName, &line.AccountType,
			&line.NormalSide, &line.IsCash, &line.Description, &debitStr, &creditStr); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debitStr); err != nil {
			return nil, err
		}
		if line.Credit, err = decimal.NewFromString(creditStr); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
