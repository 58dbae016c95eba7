package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	appshared "github.com/parishbooks/parishbooks/internal/shared"

	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

// PeriodGuard reports whether the month containing a date is locked against
// posting mutations.
type PeriodGuard interface {
	IsPeriodLocked(ctx context.Context, date time.Time) (bool, error)
}

// Service coordinates creating, posting, unposting, and reversing journal
// entries. State machine per entry: draft --post--> posted --unpost--> draft;
// posted --reverse--> posted (a new, separate entry; the source is untouched).
type Service struct {
	repo            RepositoryPort
	guard           PeriodGuard
	audit           appshared.AuditPort
	defaultCurrency string
	validate        *validator.Validate
	now             func() time.Time
}

// NewService constructs the journal service.
func NewService(repo RepositoryPort, guard PeriodGuard, audit appshared.AuditPort, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "PHP"
	}
	return &Service{
		repo:            repo,
		guard:           guard,
		audit:           audit,
		defaultCurrency: defaultCurrency,
		validate:        validator.New(),
		now:             time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntry validates and persists a new draft entry atomically: either
// the header and every line land, or nothing does.
func (s *Service) CreateEntry(ctx context.Context, in CreateInput) (Entry, error) {
	if in.CurrencyCode == "" {
		in.CurrencyCode = s.defaultCurrency
	}
	if err := s.validate.Struct(in); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range in.Lines {
			if _, err := tx.GetAccount(ctx, line.AccountID); err != nil {
				return err
			}
		}
		inserted, err := tx.InsertEntry(ctx, in)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, in.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, entry.ID, "create", in.CreatedBy, map[string]any{
		"entry_no":      entry.EntryNo,
		"source_module": entry.SourceModule,
		"source_id":     entry.SourceID,
	})
	return entry, nil
}

// PeriodLockWriter upserts the period lock row inside the same transaction
// as a posting. The closing engine uses it so a close either fully lands
// (posted closing entry plus locked month) or leaves no trace.
type PeriodLockWriter interface {
	UpsertPeriodLock(ctx context.Context, firstOfMonth time.Time, locked bool, note string) error
}

// CreatePostedEntry validates, inserts, and posts a new entry in a single
// transaction. When finish is non-nil it runs inside that transaction after
// the post; any error from it rolls the whole operation back.
func (s *Service) CreatePostedEntry(ctx context.Context, in CreateInput, postedBy *int64, finish func(context.Context, PeriodLockWriter) error) (Entry, error) {
	if in.CurrencyCode == "" {
		in.CurrencyCode = s.defaultCurrency
	}
	if err := s.validate.Struct(in); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.ensurePeriodOpen(ctx, in.EntryDate, "post"); err != nil {
			return err
		}
		for _, line := range in.Lines {
			if _, err := tx.GetAccount(ctx, line.AccountID); err != nil {
				return err
			}
		}
		inserted, err := tx.InsertEntry(ctx, in)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, in.Lines)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.SetPosted(ctx, inserted.ID, postedBy, now); err != nil {
			return err
		}
		if finish != nil {
			if err := finish(ctx, tx); err != nil {
				return err
			}
		}
		inserted.Lines = lines
		inserted.IsLocked = true
		inserted.PostedAt = &now
		inserted.PostedBy = postedBy
		inserted.LockedAt = &now
		entry = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, entry.ID, "create", in.CreatedBy, map[string]any{
		"entry_no":      entry.EntryNo,
		"source_module": entry.SourceModule,
		"source_id":     entry.SourceID,
	})
	s.record(ctx, entry.ID, "post", postedBy, map[string]any{"entry_no": entry.EntryNo})
	return entry, nil
}

// PostEntry locks a draft entry, making it part of the permanent ledger.
// Posting an already posted entry is a no-op returning the current state.
func (s *Service) PostEntry(ctx context.Context, id int64, postedBy *int64) (Entry, error) {
	var entry Entry
	var posted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if current.IsLocked {
			entry = current
			return nil
		}
		if err := s.ensurePeriodOpen(ctx, current.EntryDate, "post"); err != nil {
			return err
		}
		if !IsBalanced(current.Lines) {
			return shared.ErrUnbalanced
		}
		now := s.now()
		if err := tx.SetPosted(ctx, current.ID, postedBy, now); err != nil {
			return err
		}
		current.IsLocked = true
		current.PostedAt = &now
		current.PostedBy = postedBy
		current.LockedAt = &now
		entry = current
		posted = true
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if posted {
		s.record(ctx, entry.ID, "post", postedBy, map[string]any{"entry_no": entry.EntryNo})
	}
	return entry, nil
}

// UnpostEntry returns a posted entry to draft. Unposting a draft is a
// no-op; unposting out of a locked period is rejected.
func (s *Service) UnpostEntry(ctx context.Context, id int64, unpostedBy *int64) (Entry, error) {
	var entry Entry
	var unposted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsLocked {
			entry = current
			return nil
		}
		if err := s.ensurePeriodOpen(ctx, current.EntryDate, "unpost"); err != nil {
			return err
		}
		if err := tx.ClearPosted(ctx, current.ID); err != nil {
			return err
		}
		current.IsLocked = false
		current.PostedAt = nil
		current.PostedBy = nil
		current.LockedAt = nil
		entry = current
		unposted = true
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if unposted {
		s.record(ctx, entry.ID, "unpost", unpostedBy, map[string]any{"entry_no": entry.EntryNo})
	}
	return entry, nil
}

// ReverseEntry creates and posts a mirror of a posted entry in one
// transaction: every line's debit and credit are swapped, the source entry
// is never mutated. The reversal defaults to the source entry date unless
// asOf is supplied.
func (s *Service) ReverseEntry(ctx context.Context, id int64, asOf *time.Time, createdBy *int64) (Entry, error) {
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if !src.IsLocked {
			return shared.ErrReverseDraft
		}
		revDate := src.EntryDate
		if asOf != nil {
			revDate = *asOf
		}
		if err := s.ensurePeriodOpen(ctx, revDate, "reverse"); err != nil {
			return err
		}
		refBase := src.ReferenceNo
		if refBase == "" {
			refBase = fmt.Sprintf("JE-%d", src.EntryNo)
		}
		input := CreateInput{
			EntryDate:    revDate,
			Memo:         src.Memo + " (reversal)",
			CurrencyCode: src.CurrencyCode,
			ReferenceNo:  refBase + "-REV",
			SourceModule: "reversal",
			SourceID:     strconv.FormatInt(src.ID, 10),
			CreatedBy:    createdBy,
			Lines:        mirrorLines(src),
		}
		inserted, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.SetPosted(ctx, inserted.ID, createdBy, now); err != nil {
			return err
		}
		inserted.Lines = lines
		inserted.IsLocked = true
		inserted.PostedAt = &now
		inserted.PostedBy = createdBy
		inserted.LockedAt = &now
		reversal = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, id, "reverse", createdBy, map[string]any{
		"reversal_id":       reversal.ID,
		"reversal_entry_no": reversal.EntryNo,
	})
	return reversal, nil
}

// DeleteEntry removes a draft entry and its lines. Posted entries cannot be
// deleted; reverse them instead.
func (s *Service) DeleteEntry(ctx context.Context, id int64, deletedBy *int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if current.IsLocked {
			return shared.ErrEntryPosted
		}
		return tx.DeleteEntry(ctx, current.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, "delete", deletedBy, nil)
	return nil
}

// GetEntry returns an entry with its lines ordered by line number.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, id)
		return err
	})
	return entry, err
}

// ListEntries returns entry headers matching the filter with pagination
// metadata.
func (s *Service) ListEntries(ctx context.Context, filter ListFilter) ([]Entry, appshared.Pagination, error) {
	var entries []Entry
	var total int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, total, err = tx.ListEntries(ctx, filter)
		return err
	})
	if err != nil {
		return nil, appshared.Pagination{}, err
	}
	return entries, appshared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) ensurePeriodOpen(ctx context.Context, date time.Time, op string) error {
	if s.guard == nil {
		return nil
	}
	locked, err := s.guard.IsPeriodLocked(ctx, date)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: cannot %s in %s", shared.ErrPeriodLocked, op, date.Format("2006-01"))
	}
	return nil
}

func mirrorLines(src Entry) []LineInput {
	out := make([]LineInput, 0, len(src.Lines))
	for _, line := range src.Lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			LineNo:      line.LineNo,
			Description: fmt.Sprintf("Reversal of JE %d", src.EntryNo),
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, id int64, action string, actor *int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, appshared.AuditLog{
		EntityType: "journal_entry",
		EntityID:   strconv.FormatInt(id, 10),
		Action:     action,
		UserID:     actor,
		Details:    details,
		At:         s.now(),
	})
}
