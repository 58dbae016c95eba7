package accounts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appshared "github.com/parishbooks/parishbooks/internal/shared"

	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

// Service manages the chart of accounts. Accounts are never hard-deleted
// while journal lines reference them; deactivation is a soft toggle.
type Service struct {
	repo     Repository
	audit    appshared.AuditPort
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the accounts service.
func NewService(repo Repository, audit appshared.AuditPort) *Service {
	return &Service{
		repo:     repo,
		audit:    audit,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create inserts a new account after uniqueness checks on code and name.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return Account{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if exists, err := s.repo.ExistsCode(ctx, in.Code, 0); err != nil {
		return Account{}, err
	} else if exists {
		return Account{}, fmt.Errorf("%w: code %s", shared.ErrDuplicateAccount, in.Code)
	}
	if exists, err := s.repo.ExistsName(ctx, in.Name, 0); err != nil {
		return Account{}, err
	} else if exists {
		return Account{}, fmt.Errorf("%w: name %s", shared.ErrDuplicateAccount, in.Name)
	}
	acct, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, acct.ID, "create", in.ActorID, map[string]any{"code": acct.Code})
	return acct, nil
}

// Update applies a partial update. Changed code/name re-run the uniqueness
// checks; IsActive=false is a soft toggle and does not cascade.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Account, error) {
	if err := s.validate.Struct(in); err != nil {
		return Account{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if in.Code != nil && !strings.EqualFold(*in.Code, acct.Code) {
		code := strings.TrimSpace(*in.Code)
		if exists, err := s.repo.ExistsCode(ctx, code, id); err != nil {
			return Account{}, err
		} else if exists {
			return Account{}, fmt.Errorf("%w: code %s", shared.ErrDuplicateAccount, code)
		}
		acct.Code = code
	}
	if in.Name != nil && !strings.EqualFold(*in.Name, acct.Name) {
		name := strings.TrimSpace(*in.Name)
		if exists, err := s.repo.ExistsName(ctx, name, id); err != nil {
			return Account{}, err
		} else if exists {
			return Account{}, fmt.Errorf("%w: name %s", shared.ErrDuplicateAccount, name)
		}
		acct.Name = name
	}
	if in.Type != nil {
		acct.Type = *in.Type
	}
	if in.NormalSide != nil {
		acct.NormalSide = *in.NormalSide
	}
	if in.IsCash != nil {
		acct.IsCash = *in.IsCash
	}
	if in.Description != nil {
		acct.Description = *in.Description
	}
	if in.IsActive != nil {
		acct.IsActive = *in.IsActive
	}
	updated, err := s.repo.Update(ctx, acct)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, updated.ID, "update", in.ActorID, map[string]any{"code": updated.Code})
	return updated, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByCode returns an account by its code, case-insensitive.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns accounts matching the filter, ordered by code ascending.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) record(ctx context.Context, id int64, action string, actor *int64, details map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, appshared.AuditLog{
		EntityType: "gl_account",
		EntityID:   strconv.FormatInt(id, 10),
		Action:     action,
		UserID:     actor,
		Details:    details,
		At:         s.now(),
	})
}
