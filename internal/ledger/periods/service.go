package periods

import (
	"context"
	"time"

	appshared "github.com/parishbooks/parishbooks/internal/shared"
)

// Service exposes the period lock registry. Policy about who may lock and
// when locking is required lives with the callers; this component only owns
// the boolean flag.
type Service struct {
	repo  Repository
	audit appshared.AuditPort
	now   func() time.Time
}

// NewService constructs the period lock service.
func NewService(repo Repository, audit appshared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// IsPeriodLocked reports whether the month containing date is locked.
func (s *Service) IsPeriodLocked(ctx context.Context, date time.Time) (bool, error) {
	return s.repo.IsLocked(ctx, date)
}

// Get returns the lock row for the month containing date, if present.
func (s *Service) Get(ctx context.Context, date time.Time) (PeriodLock, bool, error) {
	return s.repo.Get(ctx, FirstOfMonth(date))
}

// SetLock upserts the lock flag for the month containing date. Idempotent;
// an empty note preserves the stored note. Also used directly by operator
// tooling for manual audit freezes, independent of closing.
func (s *Service) SetLock(ctx context.Context, date time.Time, locked bool, note string, actor *int64) error {
	first := FirstOfMonth(date)
	if err := s.repo.Upsert(ctx, first, locked, note); err != nil {
		return err
	}
	action := "unlock"
	if locked {
		action = "lock"
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, appshared.AuditLog{
			EntityType: "gl_period_lock",
			EntityID:   first.Format("2006-01"),
			Action:     action,
			UserID:     actor,
			Details:    map[string]any{"note": note},
			At:         s.now(),
		})
	}
	return nil
}
