package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

// Repository persists chart of accounts entries.
type Repository interface {
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	ExistsCode(ctx context.Context, code string, excludeID int64) (bool, error)
	ExistsName(ctx context.Context, name string, excludeID int64) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Account, error)
	Insert(ctx context.Context, in CreateInput) (Account, error)
	Update(ctx context.Context, acct Account) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the postgres-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, type, normal_side, is_cash, description, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var desc *string
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &a.IsCash, &desc, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	if desc != nil {
		a.Description = *desc
	}
	return a, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE LOWER(code)=LOWER($1)`, code))
}

func (r *repository) ExistsCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_accounts WHERE LOWER(code)=LOWER($1) AND id<>$2)`, code, excludeID).Scan(&exists)
	return exists, err
}

func (r *repository) ExistsName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_accounts WHERE LOWER(name)=LOWER($1) AND id<>$2)`, name, excludeID).Scan(&exists)
	return exists, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + strings.ToLower(q) + "%")
		where = append(where, fmt.Sprintf("(LOWER(code) LIKE %s OR LOWER(name) LIKE %s)", p, p))
	}
	if filter.Type != "" {
		where = append(where, "type="+arg(filter.Type))
	}
	if filter.IsActive != nil {
		where = append(where, "is_active="+arg(*filter.IsActive))
	}
	if filter.IsCash != nil {
		where = append(where, "is_cash="+arg(*filter.IsCash))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	sql := `SELECT ` + accountColumns + ` FROM gl_accounts WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY code ASC LIMIT ` + arg(limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO gl_accounts (code, name, type, normal_side, is_cash, description)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,'')) RETURNING `+accountColumns,
		in.Code, in.Name, in.Type, in.NormalSide, in.IsCash, in.Description)
	acct, err := scanAccount(row)
	if err != nil {
		return Account{}, mapUniqueViolation(err)
	}
	return acct, nil
}

func (r *repository) Update(ctx context.Context, acct Account) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE gl_accounts
SET code=$2, name=$3, type=$4, normal_side=$5, is_cash=$6, description=NULLIF($7,''), is_active=$8, updated_at=NOW()
WHERE id=$1 RETURNING `+accountColumns,
		acct.ID, acct.Code, acct.Name, acct.Type, acct.NormalSide, acct.IsCash, acct.Description, acct.IsActive)
	updated, err := scanAccount(row)
	if err != nil {
		return Account{}, mapUniqueViolation(err)
	}
	return updated, nil
}

// mapUniqueViolation converts a 23505 from the code/name unique indexes into
// the conflict sentinel, keeping the race window between the explicit
// existence checks and the write covered.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicateAccount
	}
	return err
}
