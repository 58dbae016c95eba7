package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// NormalSide enumerates the side on which an account balance increases.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "debit"
	NormalSideCredit NormalSide = "credit"
)

// Account models a chart of accounts entry.
type Account struct {
	ID          int64
	Code        string
	Name        string
	Type        AccountType
	NormalSide  NormalSide
	IsCash      bool
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput groups fields required to create an account.
type CreateInput struct {
	Code        string      `validate:"required,max=32"`
	Name        string      `validate:"required,max=255"`
	Type        AccountType `validate:"required,oneof=asset liability equity income expense"`
	NormalSide  NormalSide  `validate:"required,oneof=debit credit"`
	IsCash      bool
	Description string
	ActorID     *int64
}

// UpdateInput applies a partial update; nil fields are left untouched.
// NormalSide never changes implicitly when Type changes.
type UpdateInput struct {
	Code        *string      `validate:"omitempty,max=32"`
	Name        *string      `validate:"omitempty,max=255"`
	Type        *AccountType `validate:"omitempty,oneof=asset liability equity income expense"`
	NormalSide  *NormalSide  `validate:"omitempty,oneof=debit credit"`
	IsCash      *bool
	Description *string
	IsActive    *bool
	ActorID     *int64
}

// ListFilter narrows account listings. Query matches code or name,
// case-insensitive.
type ListFilter struct {
	Query    string
	Type     AccountType
	IsActive *bool
	IsCash   *bool
	Limit    int
	Offset   int
}
