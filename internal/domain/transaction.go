package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindDeposit  TransactionKind = "DEPOSIT"
	KindWithdraw TransactionKind = "WITHDRAW"
)

// Transaction is one ledger entry. Amount is always strictly positive; the
// direction of the balance change is carried by Kind.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	AccountID int64           `json:"account_id"`
	Kind      TransactionKind `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type TransactionRepository interface {
	RecordTransaction(tx *Transaction) error
	// ListByAccount returns the account's transactions oldest first.
	ListByAccount(accountID int64) ([]Transaction, error)
}
