// Package protocol parses the line-oriented banking command grammar:
//
//	REGISTER:<username>:<password>
//	LOGIN:<username>:<password>
//	DEPOSIT:<amount>
//	WITHDRAW:<amount>
//	BALANCE
//	TRANSACTIONS
//	EXIT
//
// Verbs are case-insensitive; arguments are not.
package protocol

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type Verb string

const (
	VerbRegister     Verb = "REGISTER"
	VerbLogin        Verb = "LOGIN"
	VerbDeposit      Verb = "DEPOSIT"
	VerbWithdraw     Verb = "WITHDRAW"
	VerbBalance      Verb = "BALANCE"
	VerbTransactions Verb = "TRANSACTIONS"
	VerbExit         Verb = "EXIT"
)

// Command is one parsed request line. Username/Password are set for REGISTER
// and LOGIN, Amount for DEPOSIT and WITHDRAW.
type Command struct {
	Verb     Verb
	Username string
	Password string
	Amount   decimal.Decimal
}

// ParseError carries the client-facing reason a line was rejected. The
// session renders it as "ERROR: <Message>" and keeps the connection open.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`)
	// Positive decimal with at most two fractional digits.
	amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// Parse turns one request line into a typed command.
func Parse(line string) (*Command, error) {
	parts := strings.Split(strings.TrimSpace(line), ":")
	verb := Verb(strings.ToUpper(parts[0]))

	switch verb {
	case VerbRegister, VerbLogin:
		if len(parts) != 3 {
			return nil, &ParseError{Message: "Usage - " + string(verb) + ":username:password"}
		}
		username, password := parts[1], parts[2]
		if !usernamePattern.MatchString(username) {
			return nil, &ParseError{Message: "Username must be 3-20 alphanumeric characters"}
		}
		if password == "" {
			return nil, &ParseError{Message: "Usage - " + string(verb) + ":username:password"}
		}
		return &Command{Verb: verb, Username: username, Password: password}, nil

	case VerbDeposit, VerbWithdraw:
		if len(parts) != 2 {
			return nil, &ParseError{Message: "Usage - " + string(verb) + ":amount"}
		}
		amount, err := parseAmount(parts[1])
		if err != nil {
			return nil, err
		}
		return &Command{Verb: verb, Amount: amount}, nil

	case VerbBalance, VerbTransactions, VerbExit:
		if len(parts) != 1 {
			return nil, &ParseError{Message: "Usage - " + string(verb)}
		}
		return &Command{Verb: verb}, nil

	default:
		return nil, &ParseError{Message: "Invalid command"}
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Zero, &ParseError{Message: "Invalid amount"}
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, &ParseError{Message: "Invalid amount"}
	}
	return amount, nil
}
