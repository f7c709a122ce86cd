package repository

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"securebank/internal/domain"
	"securebank/internal/errors"
)

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) RecordTransaction(tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (transaction_id, account_id, kind, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		query,
		tx.ID,
		tx.AccountID,
		string(tx.Kind),
		tx.Amount.String(),
	).Scan(&tx.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to record transaction",
			"account_id", tx.AccountID,
			"kind", tx.Kind,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to record transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction recorded", "transaction_id", tx.ID, "kind", tx.Kind)
	return nil
}

func (r *transactionRepository) ListByAccount(accountID int64) ([]domain.Transaction, error) {
	query := `
		SELECT transaction_id, account_id, kind, amount, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at, transaction_id
	`

	rows, err := r.db.Query(query, accountID)
	if err != nil {
		r.logger.Error("Failed to list transactions", "account_id", accountID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var tx domain.Transaction
		var kind string
		var amountStr string

		if err := rows.Scan(&tx.ID, &tx.AccountID, &kind, &amountStr, &tx.CreatedAt); err != nil {
			r.logger.Error("Failed to scan transaction", "account_id", accountID, "error", err)
			return nil, errors.NewAppError(errors.InternalError, "failed to scan transaction").WithDetails(err.Error())
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
		}

		tx.Kind = domain.TransactionKind(kind)
		tx.Amount = amount
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Failed while reading transactions", "account_id", accountID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list transactions").WithDetails(err.Error())
	}

	return transactions, nil
}
