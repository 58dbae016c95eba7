package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

// Entry is a journal entry header with its lines. While IsLocked is false
// the entry is a draft and may be edited or deleted; once posted it is
// immutable except for unpost and reverse.
type Entry struct {
	ID           int64
	EntryNo      int64
	EntryDate    time.Time
	Memo         string
	CurrencyCode string
	ReferenceNo  string
	SourceModule string
	SourceID     string
	IsLocked     bool
	PostedAt     *time.Time
	PostedBy     *int64
	CreatedBy    *int64
	LockedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// Line stores a debit or credit amount for an account. Exactly one side is
// strictly positive; the other is zero.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	LineNo      int
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineInput describes a journal line for a create request. LineNo is
// caller-supplied and preserved as-is; zero means "assign sequentially".
type LineInput struct {
	AccountID   int64 `validate:"required"`
	LineNo      int
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	EntryDate    time.Time `validate:"required"`
	Memo         string    `validate:"max=512"`
	CurrencyCode string    `validate:"omitempty,len=3"`
	ReferenceNo  string    `validate:"max=64"`
	SourceModule string    `validate:"max=64"`
	SourceID     string    `validate:"max=64"`
	CreatedBy    *int64
	Lines        []LineInput `validate:"min=2,dive"`
}

// ListFilter narrows entry listings.
type ListFilter struct {
	DateFrom     *time.Time
	DateTo       *time.Time
	ReferenceNo  string
	SourceModule string
	PostedOnly   bool
	Page         int
	PerPage      int
}

// Validate enforces the one-sided-line invariant per line and the balance
// invariant across the entry, to two decimal places.
func (in CreateInput) Validate() error {
	total := decimal.Zero
	for idx, line := range in.Lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrValidation, idx+1)
		}
		oneSided := (line.Debit.IsPositive() && line.Credit.IsZero()) ||
			(line.Credit.IsPositive() && line.Debit.IsZero())
		if !oneSided {
			return fmt.Errorf("%w (line %d)", shared.ErrOneSidedLine, idx+1)
		}
		total = total.Add(line.Debit).Sub(line.Credit)
	}
	if !total.Round(2).IsZero() {
		return shared.ErrUnbalanced
	}
	return nil
}

// Totals sums the debit and credit sides of an entry's lines.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// IsBalanced reports whether debits equal credits to two decimal places.
func IsBalanced(lines []Line) bool {
	debit, credit := Totals(lines)
	return debit.Sub(credit).Round(2).IsZero()
}
