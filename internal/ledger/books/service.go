package books

import (
	"context"
	"time"
)

// Service serves the four derived books. All four are pure projections of
// posted lines; none of them is an input to closing totals, which the
// closing engine recomputes from journal lines directly.
type Service struct {
	repo Repository
}

// NewService constructs the books service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GeneralJournal lists every posted line chronologically.
func (s *Service) GeneralJournal(ctx context.Context, from, to *time.Time) ([]JournalRow, error) {
	lines, err := s.repo.ListPostedLines(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return BuildGeneralJournal(lines), nil
}

// GeneralLedger groups posted activity per account with running balances.
func (s *Service) GeneralLedger(ctx context.Context, from, to *time.Time) ([]AccountLedger, error) {
	lines, err := s.repo.ListPostedLines(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return BuildGeneralLedger(lines), nil
}

// CashReceipts lists entries that debited a cash-flagged account.
func (s *Service) CashReceipts(ctx context.Context, from, to *time.Time) ([]CashBookRow, error) {
	lines, err := s.repo.ListPostedLines(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return BuildCashReceipts(lines), nil
}

// CashDisbursements lists entries that credited a cash-flagged account.
func (s *Service) CashDisbursements(ctx context.Context, from, to *time.Time) ([]CashBookRow, error) {
	lines, err := s.repo.ListPostedLines(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return BuildCashDisbursements(lines), nil
}
