package accounts

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parishbooks/parishbooks/internal/ledger/shared"
)

type memoryAccountRepo struct {
	accounts map[int64]Account
	nextID   int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{accounts: make(map[int64]Account)}
}

func (r *memoryAccountRepo) GetByID(ctx context.Context, id int64) (Account, error) {
	acct, ok := r.accounts[id]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	return acct, nil
}

func (r *memoryAccountRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	for _, acct := range r.accounts {
		if strings.EqualFold(acct.Code, code) {
			return acct, nil
		}
	}
	return Account{}, shared.ErrAccountNotFound
}

func (r *memoryAccountRepo) ExistsCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	for _, acct := range r.accounts {
		if acct.ID != excludeID && strings.EqualFold(acct.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAccountRepo) ExistsName(ctx context.Context, name string, excludeID int64) (bool, error) {
	for _, acct := range r.accounts {
		if acct.ID != excludeID && strings.EqualFold(acct.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAccountRepo) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	var out []Account
	for _, acct := range r.accounts {
		if filter.Type != "" && acct.Type != filter.Type {
			continue
		}
		if filter.IsActive != nil && acct.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsCash != nil && acct.IsCash != *filter.IsCash {
			continue
		}
		if q := strings.ToLower(filter.Query); q != "" {
			if !strings.Contains(strings.ToLower(acct.Code), q) && !strings.Contains(strings.ToLower(acct.Name), q) {
				continue
			}
		}
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryAccountRepo) Insert(ctx context.Context, in CreateInput) (Account, error) {
	r.nextID++
	now := time.Now()
	acct := Account{
		ID:          r.nextID,
		Code:        in.Code,
		Name:        in.Name,
		Type:        in.Type,
		NormalSide:  in.NormalSide,
		IsCash:      in.IsCash,
		Description: in.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.accounts[acct.ID] = acct
	return acct, nil
}

func (r *memoryAccountRepo) Update(ctx context.Context, acct Account) (Account, error) {
	if _, ok := r.accounts[acct.ID]; !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	acct.UpdatedAt = time.Now()
	r.accounts[acct.ID] = acct
	return acct, nil
}

func TestCreateAccountRejectsDuplicateCode(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	_, err := service.Create(ctx, CreateInput{Code: "A100", Name: "Cash on Hand", Type: AccountTypeAsset, NormalSide: NormalSideDebit, IsCash: true})
	require.NoError(t, err)

	_, err = service.Create(ctx, CreateInput{Code: "a100", Name: "Another Cash", Type: AccountTypeAsset, NormalSide: NormalSideDebit})
	require.ErrorIs(t, err, shared.ErrDuplicateAccount)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateAccountRejectsDuplicateName(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	_, err := service.Create(ctx, CreateInput{Code: "A400", Name: "Offerings", Type: AccountTypeIncome, NormalSide: NormalSideCredit})
	require.NoError(t, err)

	_, err = service.Create(ctx, CreateInput{Code: "A401", Name: "offerings", Type: AccountTypeIncome, NormalSide: NormalSideCredit})
	require.ErrorIs(t, err, shared.ErrDuplicateAccount)
}

func TestCreateAccountRejectsBadType(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)

	_, err := service.Create(context.Background(), CreateInput{Code: "X1", Name: "Mystery", Type: "revenue", NormalSide: NormalSideCredit})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateAccountPartialFields(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	acct, err := service.Create(ctx, CreateInput{Code: "E510", Name: "Utilities", Type: AccountTypeExpense, NormalSide: NormalSideDebit})
	require.NoError(t, err)

	newType := AccountTypeLiability
	inactive := false
	updated, err := service.Update(ctx, acct.ID, UpdateInput{Type: &newType, IsActive: &inactive})
	require.NoError(t, err)
	require.Equal(t, AccountTypeLiability, updated.Type)
	require.False(t, updated.IsActive)
	// normal side must not follow the type change
	require.Equal(t, NormalSideDebit, updated.NormalSide)
	require.Equal(t, "E510", updated.Code)
}

func TestUpdateAccountDuplicateCode(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	_, err := service.Create(ctx, CreateInput{Code: "A100", Name: "Cash", Type: AccountTypeAsset, NormalSide: NormalSideDebit, IsCash: true})
	require.NoError(t, err)
	other, err := service.Create(ctx, CreateInput{Code: "A101", Name: "Petty Cash", Type: AccountTypeAsset, NormalSide: NormalSideDebit, IsCash: true})
	require.NoError(t, err)

	dup := "A100"
	_, err = service.Update(ctx, other.ID, UpdateInput{Code: &dup})
	require.ErrorIs(t, err, shared.ErrDuplicateAccount)
}

func TestListAccountsFilters(t *testing.T) {
	repo := newMemoryAccountRepo()
	service := NewService(repo, nil)
	ctx := context.Background()

	seed := []CreateInput{
		{Code: "A100", Name: "Cash on Hand", Type: AccountTypeAsset, NormalSide: NormalSideDebit, IsCash: true},
		{Code: "A110", Name: "Cash in Bank", Type: AccountTypeAsset, NormalSide: NormalSideDebit, IsCash: true},
		{Code: "A400", Name: "Offerings", Type: AccountTypeIncome, NormalSide: NormalSideCredit},
	}
	for _, in := range seed {
		_, err := service.Create(ctx, in)
		require.NoError(t, err)
	}

	cash := true
	got, err := service.List(ctx, ListFilter{IsCash: &cash})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "A100", got[0].Code)
	require.Equal(t, "A110", got[1].Code)

	got, err = service.List(ctx, ListFilter{Query: "offer"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "A400", got[0].Code)
}

func TestGetByCodeNotFound(t *testing.T) {
	service := NewService(newMemoryAccountRepo(), nil)

	_, err := service.GetByCode(context.Background(), "ZZZ")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
