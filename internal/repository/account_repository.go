package repository

import (
	"database/sql"
	"log/slog"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"securebank/internal/domain"
	"securebank/internal/errors"
)

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(account *domain.Account) error {
	query := `
		INSERT INTO accounts (user_id, account_number, balance)
		VALUES ($1, $2, $3)
		RETURNING account_id, created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		account.UserID,
		account.AccountNumber,
		account.Balance.String(),
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Account number collision", "account_number", account.AccountNumber)
				return errors.ErrAccountNumberTaken
			}
		}
		r.logger.Error("Failed to create account", "user_id", account.UserID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	r.logger.Info("Account created", "account_id", account.ID, "account_number", account.AccountNumber)
	return nil
}

func (r *accountRepository) GetByNumber(accountNumber string) (*domain.Account, error) {
	query := `
		SELECT account_id, user_id, account_number, balance, created_at, updated_at
		FROM accounts WHERE account_number = $1
	`

	var account domain.Account
	var balanceStr string

	err := r.db.QueryRow(query, accountNumber).Scan(
		&account.ID,
		&account.UserID,
		&account.AccountNumber,
		&balanceStr,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "account_number", accountNumber)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "account_number", accountNumber, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_number", accountNumber, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.Balance = balance
	return &account, nil
}

func (r *accountRepository) Credit(accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = now()
		WHERE account_number = $2
		RETURNING account_id, balance
	`

	account, err := r.scanBalanceUpdate(query, accountNumber, amount)
	if err != nil {
		if err == errors.ErrAccountNotFound {
			r.logger.Warn("Credit on unknown account", "account_number", accountNumber)
		}
		return nil, err
	}

	r.logger.Info("Account credited", "account_number", accountNumber, "amount", amount, "new_balance", account.Balance)
	return account, nil
}

// Debit is the conditional update at the heart of the no-overdraft guarantee:
// the balance check and the decrement are one statement, so a concurrent
// debit can never act on a stale balance.
func (r *accountRepository) Debit(accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = now()
		WHERE account_number = $2 AND balance >= $1
		RETURNING account_id, balance
	`

	account, err := r.scanBalanceUpdate(query, accountNumber, amount)
	if err == errors.ErrAccountNotFound {
		// Zero rows means either the account is missing or the balance did
		// not cover the amount; one existence probe tells them apart.
		var id int64
		probeErr := r.db.QueryRow(`SELECT account_id FROM accounts WHERE account_number = $1`, accountNumber).Scan(&id)
		if probeErr == sql.ErrNoRows {
			r.logger.Warn("Debit on unknown account", "account_number", accountNumber)
			return nil, errors.ErrAccountNotFound
		}
		if probeErr != nil {
			r.logger.Error("Failed to probe account", "account_number", accountNumber, "error", probeErr)
			return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(probeErr.Error())
		}
		r.logger.Warn("Debit rejected for insufficient funds", "account_number", accountNumber, "amount", amount)
		return nil, errors.ErrInsufficientFunds
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("Account debited", "account_number", accountNumber, "amount", amount, "new_balance", account.Balance)
	return account, nil
}

func (r *accountRepository) scanBalanceUpdate(query, accountNumber string, amount decimal.Decimal) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := r.db.QueryRow(query, amount.String(), accountNumber).Scan(&account.ID, &balanceStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to update balance", "account_number", accountNumber, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to update balance").WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_number", accountNumber, "balance_str", balanceStr, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to parse balance").WithDetails(err.Error())
	}

	account.AccountNumber = accountNumber
	account.Balance = balance
	return &account, nil
}
