package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parishbooks/parishbooks/internal/ledger/accounts"
	"github.com/parishbooks/parishbooks/internal/ledger/shared"
	"github.com/parishbooks/parishbooks/internal/platform/db"
	appshared "github.com/parishbooks/parishbooks/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations. All multi-row mutations of
// one logical operation run inside a single transaction so partial writes
// are never observable.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (accounts.Account, error)
	InsertEntry(ctx context.Context, in CreateInput) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	SetPosted(ctx context.Context, id int64, postedBy *int64, at time.Time) error
	ClearPosted(ctx context.Context, id int64) error
	DeleteEntry(ctx context.Context, id int64) error
	ListEntries(ctx context.Context, filter ListFilter) ([]Entry, int, error)
	UpsertPeriodLock(ctx context.Context, firstOfMonth time.Time, locked bool, note string) error
}

// Repository persists journal entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journal repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const entryColumns = `id, entry_no, entry_date, COALESCE(memo,''), currency_code, COALESCE(reference_no,''),
COALESCE(source_module,''), COALESCE(source_id,''), is_locked, posted_at, posted_by_user_id, created_by_user_id,
locked_at, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.EntryNo, &e.EntryDate, &e.Memo, &e.CurrencyCode, &e.ReferenceNo,
		&e.SourceModule, &e.SourceID, &e.IsLocked, &e.PostedAt, &e.PostedBy, &e.CreatedBy,
		&e.LockedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (accounts.Account, error) {
	var a accounts.Account
	var desc *string
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, normal_side, is_cash, description, is_active, created_at, updated_at
FROM gl_accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &a.IsCash, &desc, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, fmt.Errorf("%w %d", shared.ErrAccountNotFound, id)
		}
		return accounts.Account{}, err
	}
	if desc != nil {
		a.Description = *desc
	}
	return a, nil
}

// InsertEntry creates the draft header. entry_no comes from the database
// sequence je_entry_no_seq so concurrent creates never collide; gaps are
// acceptable.
func (r *txRepository) InsertEntry(ctx context.Context, in CreateInput) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(entry_date, memo, currency_code, reference_no, source_module, source_id, created_by_user_id, is_locked)
VALUES ($1, NULLIF($2,''), $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), $7, FALSE)
RETURNING `+entryColumns, in.EntryDate, in.Memo, in.CurrencyCode, in.ReferenceNo, in.SourceModule, in.SourceID, in.CreatedBy)
	return scanEntry(row)
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for idx, line := range lines {
		lineNo := line.LineNo
		if lineNo == 0 {
			lineNo = idx + 1
		}
		var inserted Line
		var debitStr, creditStr string
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, line_no, description, debit, credit)
VALUES ($1,$2,$3,NULLIF($4,''),$5,$6)
RETURNING id, entry_id, account_id, line_no, COALESCE(description,''), debit::text, credit::text, created_at, updated_at`,
			entryID, line.AccountID, lineNo, line.Description, line.Debit.StringFixed(2), line.Credit.StringFixed(2)).
			Scan(&inserted.ID, &inserted.EntryID, &inserted.AccountID, &inserted.LineNo, &inserted.Description,
				&debitStr, &creditStr, &inserted.CreatedAt, &inserted.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if inserted.Debit, err = decimal.NewFromString(debitStr); err != nil {
			return nil, err
		}
		if inserted.Credit, err = decimal.NewFromString(creditStr); err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return Entry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, line_no, COALESCE(description,''), debit::text, credit::text, created_at, updated_at
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no ASC, id ASC`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		var debitStr, creditStr string
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.LineNo, &line.Description,
			&debitStr, &creditStr, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return Entry{}, err
		}
		if line.Debit, err = decimal.NewFromString(debitStr); err != nil {
			return Entry{}, err
		}
		if line.Credit, err = decimal.NewFromString(creditStr); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (r *txRepository) SetPosted(ctx context.Context, id int64, postedBy *int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET is_locked=TRUE, posted_at=$2, posted_by_user_id=$3, locked_at=$2, updated_at=NOW() WHERE id=$1`, id, at, postedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ClearPosted(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET is_locked=FALSE, posted_at=NULL, posted_by_user_id=NULL, locked_at=NULL, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

// UpsertPeriodLock mirrors the period registry upsert inside a journal
// transaction, for operations that must post and lock in one commit.
func (r *txRepository) UpsertPeriodLock(ctx context.Context, firstOfMonth time.Time, locked bool, note string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO gl_period_locks (period_month, is_locked, note)
VALUES ($1, $2, NULLIF($3, ''))
ON CONFLICT (period_month)
DO UPDATE SET is_locked = EXCLUDED.is_locked,
              note      = COALESCE(EXCLUDED.note, gl_period_locks.note),
              updated_at = NOW()`, firstOfMonth, locked, note)
	return err
}

// DeleteEntry removes a draft header; lines cascade at the data layer.
func (r *txRepository) DeleteEntry(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.DateFrom != nil {
		where = append(where, "entry_date >= "+arg(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		where = append(where, "entry_date <= "+arg(*filter.DateTo))
	}
	if filter.ReferenceNo != "" {
		where = append(where, "reference_no = "+arg(filter.ReferenceNo))
	}
	if filter.SourceModule != "" {
		where = append(where, "source_module = "+arg(filter.SourceModule))
	}
	if filter.PostedOnly {
		where = append(where, "is_locked = TRUE")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	p := appshared.NewPagination(filter.Page, filter.PerPage, total)
	sql := `SELECT ` + entryColumns + ` FROM journal_entries WHERE ` + cond +
		` ORDER BY entry_date DESC, entry_no DESC LIMIT ` + arg(p.PerPage) + ` OFFSET ` + arg(p.Offset())

	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}
