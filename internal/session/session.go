// Package session implements the per-connection protocol state machine. One
// Session value is owned by exactly one connection's goroutine; sessions
// never share state with each other, all synchronization lives in the ledger.
package session

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"securebank/internal/domain"
	"securebank/internal/errors"
	"securebank/internal/protocol"
)

// Ledger is the slice of the ledger service a session drives.
type Ledger interface {
	Register(username, password string) error
	Authenticate(username, password string) (string, error)
	Deposit(accountNumber string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(accountNumber string, amount decimal.Decimal) (decimal.Decimal, error)
	Balance(accountNumber string) (decimal.Decimal, error)
	History(accountNumber string) ([]domain.Transaction, error)
}

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

type Session struct {
	ledger Ledger
	logger *slog.Logger

	state         State
	accountNumber string
}

func NewSession(ledger Ledger, logger *slog.Logger) *Session {
	return &Session{
		ledger: ledger,
		logger: logger,
		state:  StateUnauthenticated,
	}
}

// State exposes the current protocol state, mainly for tests.
func (s *Session) State() State {
	return s.state
}

// Handle processes one request line and returns the reply plus whether the
// connection must be torn down. EXIT produces no reply; every other outcome,
// including failures, yields exactly one reply line (the TRANSACTIONS reply
// embeds its multi-line payload).
func (s *Session) Handle(line string) (reply string, closed bool) {
	if s.state == StateClosed {
		return "", true
	}

	cmd, err := protocol.Parse(line)
	if err != nil {
		return "ERROR: " + err.Error(), false
	}

	switch cmd.Verb {
	case protocol.VerbRegister:
		return s.handleRegister(cmd), false
	case protocol.VerbLogin:
		return s.handleLogin(cmd), false
	case protocol.VerbDeposit:
		return s.authenticated(func() string { return s.handleDeposit(cmd) }), false
	case protocol.VerbWithdraw:
		return s.authenticated(func() string { return s.handleWithdraw(cmd) }), false
	case protocol.VerbBalance:
		return s.authenticated(s.handleBalance), false
	case protocol.VerbTransactions:
		return s.authenticated(s.handleTransactions), false
	case protocol.VerbExit:
		s.state = StateClosed
		return "", true
	default:
		return "ERROR: Invalid command", false
	}
}

// authenticated gates a handler behind the login state. The ledger is never
// reached while unauthenticated.
func (s *Session) authenticated(handler func() string) string {
	if s.state != StateAuthenticated {
		return "ERROR: Authentication required"
	}
	return handler()
}

// handleRegister never changes the session state: registration does not log
// the user in, whether it succeeds or not.
func (s *Session) handleRegister(cmd *protocol.Command) string {
	if err := s.ledger.Register(cmd.Username, cmd.Password); err != nil {
		if code(err) == errors.UsernameTaken {
			return "ERROR: Registration failed"
		}
		return s.storeError(err)
	}
	return "SUCCESS: Registration successful"
}

// handleLogin binds the session to the authenticated account. A LOGIN while
// already authenticated is accepted and simply rebinds, matching the original
// server's behavior.
func (s *Session) handleLogin(cmd *protocol.Command) string {
	accountNumber, err := s.ledger.Authenticate(cmd.Username, cmd.Password)
	if err != nil {
		switch code(err) {
		case errors.InvalidCredentials:
			return "ERROR: Invalid password"
		case errors.UserNotFound:
			return "ERROR: User not found"
		}
		return s.storeError(err)
	}

	s.state = StateAuthenticated
	s.accountNumber = accountNumber
	return "SUCCESS: Logged in. Account: " + accountNumber
}

func (s *Session) handleDeposit(cmd *protocol.Command) string {
	if _, err := s.ledger.Deposit(s.accountNumber, cmd.Amount); err != nil {
		if code(err) == errors.AccountNotFound {
			return "ERROR: Account not found"
		}
		return s.storeError(err)
	}
	return "SUCCESS: Deposited " + cmd.Amount.StringFixed(2)
}

func (s *Session) handleWithdraw(cmd *protocol.Command) string {
	if _, err := s.ledger.Withdraw(s.accountNumber, cmd.Amount); err != nil {
		switch code(err) {
		case errors.InsufficientFunds:
			return "ERROR: Withdrawal failed"
		case errors.AccountNotFound:
			return "ERROR: Account not found"
		}
		return s.storeError(err)
	}
	return "SUCCESS: Withdrew " + cmd.Amount.StringFixed(2)
}

func (s *Session) handleBalance() string {
	balance, err := s.ledger.Balance(s.accountNumber)
	if err != nil {
		if code(err) == errors.AccountNotFound {
			return "ERROR: Account not found"
		}
		return s.storeError(err)
	}
	return "SUCCESS: Current balance: " + balance.StringFixed(2)
}

// handleTransactions renders the history as one reply with an embedded
// multi-line payload, one canonical "<timestamp>,<kind>,<amount>" line per
// transaction, oldest first.
func (s *Session) handleTransactions() string {
	transactions, err := s.ledger.History(s.accountNumber)
	if err != nil {
		if code(err) == errors.AccountNotFound {
			return "ERROR: Account not found"
		}
		return s.storeError(err)
	}

	var b strings.Builder
	b.WriteString("TRANSACTIONS:")
	for _, tx := range transactions {
		b.WriteString("\n")
		b.WriteString(FormatTransaction(tx))
	}
	return b.String()
}

// FormatTransaction renders one canonical history line.
func FormatTransaction(tx domain.Transaction) string {
	return tx.CreatedAt.UTC().Format(time.RFC3339) + "," + string(tx.Kind) + "," + tx.Amount.StringFixed(2)
}

// storeError hides internal fault detail from the wire; the session stays
// usable for subsequent commands.
func (s *Session) storeError(err error) string {
	s.logger.Error("Store call failed", "error", err)
	return "ERROR: Database error"
}

func code(err error) errors.ErrorCode {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr.Code
	}
	return errors.InternalError
}
