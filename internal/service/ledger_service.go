package service

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"securebank/internal/accountnumber"
	"securebank/internal/auth"
	"securebank/internal/domain"
	"securebank/internal/errors"
	"securebank/internal/repository"
)

// maxRegisterAttempts bounds the account-number collision retries. Postgres
// aborts a transaction after any failed statement, so each retry restarts
// the whole registration unit rather than continuing inside it.
const maxRegisterAttempts = 5

// LedgerService is the transactional core: every mutation runs as one
// all-or-nothing database transaction, and all cross-session synchronization
// happens here rather than in the sessions.
type LedgerService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewLedgerService(store *repository.Store, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: logger,
	}
}

// Register creates a user and its zero-balance account atomically. The
// username is assumed to be validated by the caller; the password never
// leaves this method in plaintext.
func (s *LedgerService) Register(username, password string) error {
	s.logger.Info("Registering user", "username", username)

	digest, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("Failed to hash password", "username", username, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to hash password").WithDetails(err.Error())
	}

	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		number, err := accountnumber.Generate()
		if err != nil {
			s.logger.Error("Failed to generate account number", "error", err)
			return errors.NewAppError(errors.InternalError, "failed to generate account number").WithDetails(err.Error())
		}

		err = s.store.WithTransaction(func(st *repository.Store) error {
			user := &domain.User{
				Username:       username,
				PasswordDigest: digest,
			}
			if err := st.User().CreateUser(user); err != nil {
				return err
			}

			account := &domain.Account{
				UserID:        user.ID,
				AccountNumber: number,
				Balance:       decimal.Zero,
			}
			return st.Account().CreateAccount(account)
		})

		if err == errors.ErrAccountNumberTaken {
			s.logger.Warn("Retrying registration after account number collision",
				"username", username, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return err
		}

		s.logger.Info("User registered", "username", username, "account_number", number)
		return nil
	}

	s.logger.Error("Exhausted account number allocation attempts", "username", username)
	return errors.NewAppError(errors.InternalError, "could not allocate a unique account number")
}

// Authenticate verifies the password and returns the bound account number.
func (s *LedgerService) Authenticate(username, password string) (string, error) {
	creds, err := s.store.User().GetCredentials(username)
	if err != nil {
		return "", err
	}

	if !auth.CheckPassword(password, creds.PasswordDigest) {
		s.logger.Warn("Failed login attempt", "username", username)
		return "", errors.ErrInvalidCredentials
	}

	s.logger.Info("User authenticated", "username", username, "account_number", creds.AccountNumber)
	return creds.AccountNumber, nil
}

// Deposit increases the balance and appends the DEPOSIT record in one
// transaction, returning the new balance.
func (s *LedgerService) Deposit(accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount
	}

	var newBalance decimal.Decimal
	err := s.store.WithTransaction(func(st *repository.Store) error {
		account, err := st.Account().Credit(accountNumber, amount)
		if err != nil {
			return err
		}
		newBalance = account.Balance

		return st.Transaction().RecordTransaction(&domain.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Kind:      domain.KindDeposit,
			Amount:    amount,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

// Withdraw decrements the balance through the conditional update and appends
// the WITHDRAW record in the same transaction. Insufficient funds roll the
// whole unit back with no partial state.
func (s *LedgerService) Withdraw(accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount
	}

	var newBalance decimal.Decimal
	err := s.store.WithTransaction(func(st *repository.Store) error {
		account, err := st.Account().Debit(accountNumber, amount)
		if err != nil {
			return err
		}
		newBalance = account.Balance

		return st.Transaction().RecordTransaction(&domain.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Kind:      domain.KindWithdraw,
			Amount:    amount,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

// Balance returns the current balance.
func (s *LedgerService) Balance(accountNumber string) (decimal.Decimal, error) {
	account, err := s.store.Account().GetByNumber(accountNumber)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// History returns the account's transactions oldest first. An existing
// account with no transactions yields an empty slice, which is distinct
// from ErrAccountNotFound.
func (s *LedgerService) History(accountNumber string) ([]domain.Transaction, error) {
	account, err := s.store.Account().GetByNumber(accountNumber)
	if err != nil {
		return nil, err
	}
	return s.store.Transaction().ListByAccount(account.ID)
}
