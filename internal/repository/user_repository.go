package repository

import (
	"database/sql"
	"log/slog"

	"github.com/lib/pq"

	"securebank/internal/domain"
	"securebank/internal/errors"
)

type userRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewUserRepository(db SQLExecutor, logger *slog.Logger) domain.UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

func (r *userRepository) CreateUser(user *domain.User) error {
	query := `
		INSERT INTO users (username, password_digest)
		VALUES ($1, $2)
		RETURNING user_id, created_at
	`

	err := r.db.QueryRow(query, user.Username, user.PasswordDigest).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate username registration attempt", "username", user.Username)
				return errors.ErrUsernameTaken
			}
		}
		r.logger.Error("Failed to create user", "username", user.Username, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create user").WithDetails(err.Error())
	}

	r.logger.Info("User created", "username", user.Username, "user_id", user.ID)
	return nil
}

func (r *userRepository) GetCredentials(username string) (*domain.Credentials, error) {
	query := `
		SELECT u.password_digest, a.account_number
		FROM users u
		JOIN accounts a ON a.user_id = u.user_id
		WHERE u.username = $1
	`

	var creds domain.Credentials
	err := r.db.QueryRow(query, username).Scan(&creds.PasswordDigest, &creds.AccountNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Unknown username", "username", username)
			return nil, errors.ErrUserNotFound
		}
		r.logger.Error("Failed to get credentials", "username", username, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get credentials").WithDetails(err.Error())
	}

	return &creds, nil
}
