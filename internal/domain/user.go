package domain

import (
	"time"
)

type User struct {
	ID             int64     `json:"user_id"`
	Username       string    `json:"username"`
	PasswordDigest string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Credentials is what the authentication path needs: the stored digest and
// the public account number the user is bound to after login. The digest
// never travels further than the ledger service.
type Credentials struct {
	PasswordDigest string
	AccountNumber  string
}

type UserRepository interface {
	CreateUser(user *User) error
	GetCredentials(username string) (*Credentials, error)
}
