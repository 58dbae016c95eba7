package closing

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/parishbooks/parishbooks/internal/ledger/accounts"
	"github.com/parishbooks/parishbooks/internal/ledger/journal"
	"github.com/parishbooks/parishbooks/internal/ledger/periods"
	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

// fakeLedger backs JournalPort, Repository, and PeriodPort with one shared
// in-memory state so close/reopen/reclose cycles observe their own writes.
// lockErr, when set, makes the in-transaction lock upsert fail.
type fakeLedger struct {
	accounts    map[int64]accounts.Account
	entries     map[int64]journal.Entry
	locks       map[time.Time]bool
	lockErr     error
	nextID      int64
	nextEntryNo int64
}

func newFakeLedger(accts ...accounts.Account) *fakeLedger {
	f := &fakeLedger{
		accounts: make(map[int64]accounts.Account),
		entries:  make(map[int64]journal.Entry),
		locks:    make(map[time.Time]bool),
	}
	for _, acct := range accts {
		f.accounts[acct.ID] = acct
	}
	return f
}

func (f *fakeLedger) CreateEntry(ctx context.Context, in journal.CreateInput) (journal.Entry, error) {
	if err := in.Validate(); err != nil {
		return journal.Entry{}, err
	}
	for _, line := range in.Lines {
		if _, ok := f.accounts[line.AccountID]; !ok {
			return journal.Entry{}, shared.ErrAccountNotFound
		}
	}
	f.nextID++
	f.nextEntryNo++
	entry := journal.Entry{
		ID:           f.nextID,
		EntryNo:      f.nextEntryNo,
		EntryDate:    in.EntryDate,
		Memo:         in.Memo,
		CurrencyCode: in.CurrencyCode,
		ReferenceNo:  in.ReferenceNo,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		CreatedBy:    in.CreatedBy,
	}
	for idx, line := range in.Lines {
		entry.Lines = append(entry.Lines, journal.Line{
			AccountID:   line.AccountID,
			LineNo:      idx + 1,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	f.entries[entry.ID] = entry
	return entry, nil
}

func (f *fakeLedger) PostEntry(ctx context.Context, id int64, postedBy *int64) (journal.Entry, error) {
	entry, ok := f.entries[id]
	if !ok {
		return journal.Entry{}, shared.ErrEntryNotFound
	}
	if entry.IsLocked {
		return entry, nil
	}
	if f.locks[periods.FirstOfMonth(entry.EntryDate)] {
		return journal.Entry{}, shared.ErrPeriodLocked
	}
	now := time.Now()
	entry.IsLocked = true
	entry.PostedAt = &now
	entry.PostedBy = postedBy
	f.entries[id] = entry
	return entry, nil
}

// CreatePostedEntry mimics the transactional create+post+finish: if posting
// or the finish hook fails, the entry is removed again, like a rollback.
func (f *fakeLedger) CreatePostedEntry(ctx context.Context, in journal.CreateInput, postedBy *int64, finish func(context.Context, journal.PeriodLockWriter) error) (journal.Entry, error) {
	entry, err := f.CreateEntry(ctx, in)
	if err != nil {
		return journal.Entry{}, err
	}
	posted, err := f.PostEntry(ctx, entry.ID, postedBy)
	if err != nil {
		delete(f.entries, entry.ID)
		return journal.Entry{}, err
	}
	if finish != nil {
		if err := finish(ctx, f); err != nil {
			delete(f.entries, entry.ID)
			return journal.Entry{}, err
		}
	}
	return posted, nil
}

func (f *fakeLedger) UpsertPeriodLock(ctx context.Context, firstOfMonth time.Time, locked bool, note string) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locks[periods.FirstOfMonth(firstOfMonth)] = locked
	return nil
}

func (f *fakeLedger) ReverseEntry(ctx context.Context, id int64, asOf *time.Time, createdBy *int64) (journal.Entry, error) {
	src, ok := f.entries[id]
	if !ok {
		return journal.Entry{}, shared.ErrEntryNotFound
	}
	if !src.IsLocked {
		return journal.Entry{}, shared.ErrReverseDraft
	}
	revDate := src.EntryDate
	if asOf != nil {
		revDate = *asOf
	}
	if f.locks[periods.FirstOfMonth(revDate)] {
		return journal.Entry{}, shared.ErrPeriodLocked
	}
	in := journal.CreateInput{
		EntryDate:    revDate,
		Memo:         src.Memo + " (reversal)",
		ReferenceNo:  src.ReferenceNo + "-REV",
		SourceModule: "reversal",
		SourceID:     strconv.FormatInt(src.ID, 10),
		CreatedBy:    createdBy,
	}
	for _, line := range src.Lines {
		in.Lines = append(in.Lines, journal.LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	reversal, err := f.CreateEntry(ctx, in)
	if err != nil {
		return journal.Entry{}, err
	}
	return f.PostEntry(ctx, reversal.ID, createdBy)
}

func (f *fakeLedger) MonthActivity(ctx context.Context, first, last time.Time) ([]AccountActivity, error) {
	byAccount := map[int64]*AccountActivity{}
	for _, entry := range f.entries {
		if !entry.IsLocked || entry.EntryDate.Before(first) || entry.EntryDate.After(last) {
			continue
		}
		switch entry.SourceModule {
		case "opening", "closing", "reversal":
			continue
		}
		for _, line := range entry.Lines {
			acct := f.accounts[line.AccountID]
			if acct.Type != accounts.AccountTypeIncome && acct.Type != accounts.AccountTypeExpense {
				continue
			}
			act, ok := byAccount[acct.ID]
			if !ok {
				act = &AccountActivity{AccountID: acct.ID, Code: acct.Code, Type: acct.Type, Debit: decimal.Zero, Credit: decimal.Zero}
				byAccount[acct.ID] = act
			}
			act.Debit = act.Debit.Add(line.Debit)
			act.Credit = act.Credit.Add(line.Credit)
		}
	}
	var out []AccountActivity
	for _, act := range byAccount {
		out = append(out, *act)
	}
	return out, nil
}

func (f *fakeLedger) PostedClosingEntries(ctx context.Context, reference string) ([]ClosingRef, error) {
	var out []ClosingRef
	for _, entry := range f.entries {
		if entry.IsLocked && entry.ReferenceNo == reference {
			out = append(out, ClosingRef{ID: entry.ID, EntryNo: entry.EntryNo})
		}
	}
	return out, nil
}

func (f *fakeLedger) HasPostedReversal(ctx context.Context, closingID int64) (bool, error) {
	want := strconv.FormatInt(closingID, 10)
	for _, entry := range f.entries {
		if entry.IsLocked && entry.SourceModule == "reversal" && entry.SourceID == want {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) IsPeriodLocked(ctx context.Context, date time.Time) (bool, error) {
	return f.locks[periods.FirstOfMonth(date)], nil
}

func (f *fakeLedger) SetLock(ctx context.Context, date time.Time, locked bool, note string, actor *int64) error {
	f.locks[periods.FirstOfMonth(date)] = locked
	return nil
}

func parishAccounts() []accounts.Account {
	return []accounts.Account{
		{ID: 1, Code: "A100", Name: "Cash on Hand", Type: accounts.AccountTypeAsset, NormalSide: accounts.NormalSideDebit, IsCash: true},
		{ID: 2, Code: "A400", Name: "Offerings", Type: accounts.AccountTypeIncome, NormalSide: accounts.NormalSideCredit},
		{ID: 3, Code: "E300", Name: "Fund Balance", Type: accounts.AccountTypeEquity, NormalSide: accounts.NormalSideCredit},
		{ID: 4, Code: "E510", Name: "Utilities", Type: accounts.AccountTypeExpense, NormalSide: accounts.NormalSideDebit},
	}
}

func newHarness(t *testing.T) (*fakeLedger, *Service) {
	t.Helper()
	ledger := newFakeLedger(parishAccounts()...)
	return ledger, NewService(ledger, ledger, ledger, NewLocalLocker(), nil)
}

func postActivity(t *testing.T, ledger *fakeLedger, date time.Time, debitAcct, creditAcct int64, amount string) {
	t.Helper()
	ctx := context.Background()
	entry, err := ledger.CreateEntry(ctx, journal.CreateInput{
		EntryDate: date,
		Memo:      "activity",
		Lines: []journal.LineInput{
			{AccountID: debitAcct, Debit: decimal.RequireFromString(amount)},
			{AccountID: creditAcct, Credit: decimal.RequireFromString(amount)},
		},
	})
	require.NoError(t, err)
	_, err = ledger.PostEntry(ctx, entry.ID, nil)
	require.NoError(t, err)
}

func unreversedClosings(t *testing.T, ledger *fakeLedger, reference string) []ClosingRef {
	t.Helper()
	ctx := context.Background()
	closings, err := ledger.PostedClosingEntries(ctx, reference)
	require.NoError(t, err)
	var out []ClosingRef
	for _, closing := range closings {
		reversed, err := ledger.HasPostedReversal(ctx, closing.ID)
		require.NoError(t, err)
		if !reversed {
			out = append(out, closing)
		}
	}
	return out
}

func TestClosePeriodNetsIncomeToEquity(t *testing.T) {
	ledger, service := newHarness(t)
	ctx := context.Background()
	postActivity(t, ledger, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")

	entry, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
	require.True(t, entry.IsLocked)
	require.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), entry.EntryDate)
	require.Equal(t, "CLOSE-202508", entry.ReferenceNo)
	require.Equal(t, "closing", entry.SourceModule)
	require.Equal(t, "CLOSE-202508", entry.SourceID)
	require.Equal(t, "Closing Entry 2025-08", entry.Memo)

	require.Len(t, entry.Lines, 2)
	require.Equal(t, int64(2), entry.Lines[0].AccountID)
	require.Equal(t, "Close income A400", entry.Lines[0].Description)
	require.True(t, entry.Lines[0].Debit.Equal(decimal.RequireFromString("100.00")))
	require.Equal(t, int64(3), entry.Lines[1].AccountID)
	require.Equal(t, "Net Income", entry.Lines[1].Description)
	require.True(t, entry.Lines[1].Credit.Equal(decimal.RequireFromString("100.00")))

	locked, err := ledger.IsPeriodLocked(ctx, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, locked)

	// posting into the closed month is now rejected
	draft, err := ledger.CreateEntry(ctx, journal.CreateInput{
		EntryDate: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
		Lines: []journal.LineInput{
			{AccountID: 1, Debit: decimal.RequireFromString("5.00")},
			{AccountID: 2, Credit: decimal.RequireFromString("5.00")},
		},
	})
	require.NoError(t, err)
	_, err = ledger.PostEntry(ctx, draft.ID, nil)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestClosePeriodNetLoss(t *testing.T) {
	ledger, service := newHarness(t)
	postActivity(t, ledger, time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")
	postActivity(t, ledger, time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC), 4, 1, "150.00")

	entry, err := service.ClosePeriod(context.Background(), 2025, 8, 3, "", nil)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)

	last := entry.Lines[len(entry.Lines)-1]
	require.Equal(t, int64(3), last.AccountID)
	require.Equal(t, "Net Loss", last.Description)
	require.True(t, last.Debit.Equal(decimal.RequireFromString("50.00")))
	require.True(t, journal.IsBalanced(entry.Lines))
}

func TestClosePeriodAtomicWhenLockFails(t *testing.T) {
	ledger, service := newHarness(t)
	ctx := context.Background()
	postActivity(t, ledger, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")

	ledger.lockErr = errors.New("lock row write failed")
	_, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.Error(t, err)

	// the failed close leaves no trace: no posted closing entry, period open
	closings, err := ledger.PostedClosingEntries(ctx, "CLOSE-202508")
	require.NoError(t, err)
	require.Empty(t, closings)
	locked, err := ledger.IsPeriodLocked(ctx, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.False(t, locked)

	// so a retry succeeds instead of tripping over an orphaned closing
	ledger.lockErr = nil
	entry, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
	require.True(t, entry.IsLocked)
	locked, err = ledger.IsPeriodLocked(ctx, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, locked)
}

func TestClosePeriodAlreadyLocked(t *testing.T) {
	ledger, service := newHarness(t)
	ctx := context.Background()
	require.NoError(t, ledger.SetLock(ctx, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), true, "closed", nil))

	_, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestClosePeriodNothingToClose(t *testing.T) {
	_, service := newHarness(t)

	_, err := service.ClosePeriod(context.Background(), 2025, 8, 3, "", nil)
	require.ErrorIs(t, err, shared.ErrNothingToClose)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestClosePeriodBusy(t *testing.T) {
	ledger, _ := newHarness(t)
	locker := NewLocalLocker()
	service := NewService(ledger, ledger, ledger, locker, nil)
	ctx := context.Background()
	postActivity(t, ledger, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")

	got, err := locker.TryAcquire(ctx, MonthKey(2025, 8))
	require.NoError(t, err)
	require.True(t, got)

	_, err = service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.ErrorIs(t, err, shared.ErrBusy)

	// the lock is released on every exit path, so after Release the close
	// goes through
	require.NoError(t, locker.Release(ctx, MonthKey(2025, 8)))
	_, err = service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
}

func TestCloseAfterReopenRequiresReversal(t *testing.T) {
	ledger, service := newHarness(t)
	ctx := context.Background()
	postActivity(t, ledger, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")

	_, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
	require.NoError(t, service.ReopenPeriod(ctx, 2025, 8, "", nil))

	_, err = service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.ErrorIs(t, err, shared.ErrAlreadyClosed)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestReclosePeriodNeutralizesPriorClosings(t *testing.T) {
	ledger, service := newHarness(t)
	ctx := context.Background()
	postActivity(t, ledger, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")

	first, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)

	second, err := service.ReclosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	reversed, err := ledger.HasPostedReversal(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, reversed)

	remaining := unreversedClosings(t, ledger, "CLOSE-202508")
	require.Len(t, remaining, 1)
	require.Equal(t, second.ID, remaining[0].ID)

	// the new closing reproduces the same equity amount because system
	// entries never feed the aggregation
	equity := second.Lines[len(second.Lines)-1]
	require.Equal(t, "Net Income", equity.Description)
	require.True(t, equity.Credit.Equal(decimal.RequireFromString("100.00")))

	locked, err := ledger.IsPeriodLocked(ctx, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, locked)
}

func TestRecloseTwiceLeavesOneClosingInEffect(t *testing.T) {
	ledger, service := newHarness(t)
	ctx := context.Background()
	postActivity(t, ledger, time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC), 1, 2, "100.00")

	_, err := service.ClosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
	_, err = service.ReclosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)
	final, err := service.ReclosePeriod(ctx, 2025, 8, 3, "", nil)
	require.NoError(t, err)

	remaining := unreversedClosings(t, ledger, "CLOSE-202508")
	require.Len(t, remaining, 1)
	require.Equal(t, final.ID, remaining[0].ID)
}

func TestMonthKey(t *testing.T) {
	require.Equal(t, int64(202508), MonthKey(2025, 8))
	require.Equal(t, int64(202512), MonthKey(2025, 12))
}
