package closing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parishbooks/parishbooks/internal/ledger/accounts"
	"github.com/parishbooks/parishbooks/internal/ledger/journal"
	"github.com/parishbooks/parishbooks/internal/ledger/periods"
	"github.com/parishbooks/parishbooks/internal/ledger/shared"
	appshared "github.com/parishbooks/parishbooks/internal/shared"
)

// JournalPort is the slice of the journal service the closing engine uses.
// CreatePostedEntry must run its finish hook inside the same transaction as
// the insert and post, so the closing entry and the lock row commit or roll
// back together.
type JournalPort interface {
	CreatePostedEntry(ctx context.Context, in journal.CreateInput, postedBy *int64, finish func(context.Context, journal.PeriodLockWriter) error) (journal.Entry, error)
	ReverseEntry(ctx context.Context, id int64, asOf *time.Time, createdBy *int64) (journal.Entry, error)
}

// PeriodPort is the slice of the period lock registry the closing engine uses.
type PeriodPort interface {
	IsPeriodLocked(ctx context.Context, date time.Time) (bool, error)
	SetLock(ctx context.Context, date time.Time, locked bool, note string, actor *int64) error
}

// Service nets a month's income and expense activity into equity and locks
// the period. State machine per (year, month):
// open --close--> closed --reopen--> open --reclose--> closed --reopen--> ...
type Service struct {
	journals JournalPort
	periods  PeriodPort
	repo     Repository
	locker   MonthLocker
	audit    appshared.AuditPort
	now      func() time.Time
}

// NewService constructs the closing service.
func NewService(journals JournalPort, periodSvc PeriodPort, repo Repository, locker MonthLocker, audit appshared.AuditPort) *Service {
	return &Service{
		journals: journals,
		periods:  periodSvc,
		repo:     repo,
		locker:   locker,
		audit:    audit,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Reference builds the closing reference for a month, e.g. CLOSE-202508.
func Reference(year, month int) string {
	return fmt.Sprintf("CLOSE-%04d%02d", year, month)
}

// ClosePeriod creates and posts the closing entry for a month, then locks
// the period. A second concurrent caller for the same month receives an
// immediate busy error rather than waiting.
func (s *Service) ClosePeriod(ctx context.Context, year, month int, equityAccountID int64, note string, createdBy *int64) (journal.Entry, error) {
	release, err := s.acquire(ctx, year, month)
	if err != nil {
		return journal.Entry{}, err
	}
	defer release()
	return s.closeLocked(ctx, year, month, equityAccountID, noteOr(note, "closed"), createdBy)
}

// ReopenPeriod unlocks a month. Closing entries are left untouched; a later
// reclose neutralizes them. Idempotent.
func (s *Service) ReopenPeriod(ctx context.Context, year, month int, note string, actor *int64) error {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return s.periods.SetLock(ctx, first, false, noteOr(note, "reopened"), actor)
}

// ReclosePeriod reopens a month, reverses every closing entry that is still
// in effect, and closes again. The whole cycle runs under the month lock so
// no posting race can interleave between the reversal and the new close.
func (s *Service) ReclosePeriod(ctx context.Context, year, month int, equityAccountID int64, note string, createdBy *int64) (journal.Entry, error) {
	release, err := s.acquire(ctx, year, month)
	if err != nil {
		return journal.Entry{}, err
	}
	defer release()

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	if err := s.periods.SetLock(ctx, first, false, noteOr(note, "reopened"), createdBy); err != nil {
		return journal.Entry{}, err
	}

	closings, err := s.repo.PostedClosingEntries(ctx, Reference(year, month))
	if err != nil {
		return journal.Entry{}, err
	}
	last := periods.LastOfMonth(first)
	for _, closing := range closings {
		reversed, err := s.repo.HasPostedReversal(ctx, closing.ID)
		if err != nil {
			return journal.Entry{}, err
		}
		if reversed {
			continue
		}
		if _, err := s.journals.ReverseEntry(ctx, closing.ID, &last, createdBy); err != nil {
			return journal.Entry{}, err
		}
	}

	return s.closeLocked(ctx, year, month, equityAccountID, noteOr(note, "reclosed"), createdBy)
}

// closeLocked runs the close with the month lock already held. The lock
// abstraction is not re-entrant, so reclose calls this directly instead of
// ClosePeriod.
func (s *Service) closeLocked(ctx context.Context, year, month int, equityAccountID int64, note string, createdBy *int64) (journal.Entry, error) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := periods.LastOfMonth(first)

	locked, err := s.periods.IsPeriodLocked(ctx, first)
	if err != nil {
		return journal.Entry{}, err
	}
	if locked {
		return journal.Entry{}, fmt.Errorf("%w: period %04d-%02d is already locked", shared.ErrValidation, year, month)
	}

	reference := Reference(year, month)
	closings, err := s.repo.PostedClosingEntries(ctx, reference)
	if err != nil {
		return journal.Entry{}, err
	}
	for _, closing := range closings {
		reversed, err := s.repo.HasPostedReversal(ctx, closing.ID)
		if err != nil {
			return journal.Entry{}, err
		}
		if !reversed {
			return journal.Entry{}, fmt.Errorf("%w: entry %d still in effect", shared.ErrAlreadyClosed, closing.EntryNo)
		}
	}

	activity, err := s.repo.MonthActivity(ctx, first, last)
	if err != nil {
		return journal.Entry{}, err
	}

	lines, equity := buildClosingLines(activity, equityAccountID)
	if len(lines) == 0 && equity.IsZero() {
		return journal.Entry{}, fmt.Errorf("%w for %04d-%02d", shared.ErrNothingToClose, year, month)
	}

	posted, err := s.journals.CreatePostedEntry(ctx, journal.CreateInput{
		EntryDate:    last,
		Memo:         fmt.Sprintf("Closing Entry %04d-%02d", year, month),
		ReferenceNo:  reference,
		SourceModule: "closing",
		SourceID:     reference,
		CreatedBy:    createdBy,
		Lines:        lines,
	}, createdBy, func(ctx context.Context, tx journal.PeriodLockWriter) error {
		return tx.UpsertPeriodLock(ctx, first, true, note)
	})
	if err != nil {
		return journal.Entry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, appshared.AuditLog{
			EntityType: "gl_period",
			EntityID:   first.Format("2006-01"),
			Action:     "close",
			UserID:     createdBy,
			Details:    map[string]any{"entry_no": posted.EntryNo, "reference": reference},
			At:         s.now(),
		})
	}
	return posted, nil
}

// buildClosingLines turns month activity into closing lines: one debit per
// income account with positive net credit, one credit per expense account
// with positive net debit, and a balancing equity line for the difference.
func buildClosingLines(activity []AccountActivity, equityAccountID int64) ([]journal.LineInput, decimal.Decimal) {
	var lines []journal.LineInput
	totalIncome, totalExpense := decimal.Zero, decimal.Zero
	for _, act := range activity {
		switch act.Type {
		case accounts.AccountTypeIncome:
			net := act.Credit.Sub(act.Debit)
			if net.IsPositive() {
				lines = append(lines, journal.LineInput{
					AccountID:   act.AccountID,
					Description: "Close income " + act.Code,
					Debit:       net,
				})
				totalIncome = totalIncome.Add(net)
			}
		case accounts.AccountTypeExpense:
			net := act.Debit.Sub(act.Credit)
			if net.IsPositive() {
				lines = append(lines, journal.LineInput{
					AccountID:   act.AccountID,
					Description: "Close expense " + act.Code,
					Credit:      net,
				})
				totalExpense = totalExpense.Add(net)
			}
		}
	}
	equity := totalIncome.Sub(totalExpense)
	switch {
	case equity.IsPositive():
		lines = append(lines, journal.LineInput{AccountID: equityAccountID, Description: "Net Income", Credit: equity})
	case equity.IsNegative():
		lines = append(lines, journal.LineInput{AccountID: equityAccountID, Description: "Net Loss", Debit: equity.Abs()})
	}
	return lines, equity
}

func (s *Service) acquire(ctx context.Context, year, month int) (func(), error) {
	key := MonthKey(year, month)
	ok, err := s.locker.TryAcquire(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: close already running for %04d-%02d", shared.ErrBusy, year, month)
	}
	return func() { _ = s.locker.Release(ctx, key) }, nil
}

func noteOr(note, fallback string) string {
	if note == "" {
		return fallback
	}
	return note
}
