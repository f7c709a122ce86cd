package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID            int64           `json:"account_id"`
	UserID        int64           `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type AccountRepository interface {
	CreateAccount(account *Account) error
	GetByNumber(accountNumber string) (*Account, error)
	// Credit adds amount to the balance and returns the updated account.
	Credit(accountNumber string, amount decimal.Decimal) (*Account, error)
	// Debit subtracts amount from the balance only if the current balance
	// covers it, as a single conditional update. It returns
	// ErrInsufficientFunds when the account exists but the balance check
	// failed, so two concurrent debits can never both pass a stale check.
	Debit(accountNumber string, amount decimal.Decimal) (*Account, error)
}
