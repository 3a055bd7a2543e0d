package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountTaken       = errors.New("account already in use")
	ErrInvalidCredentials = errors.New("invalid account or password")
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetProfile(ctx context.Context, id int64) (models.Profile, error)
	Register(ctx context.Context, name, account, password string, age int, sex string) (models.User, error)
	Authenticate(ctx context.Context, account, password string) (models.User, error)
}

// UserService provides business logic for user management.
type UserService struct {
	db  *sql.DB
	now func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db, now: time.Now}
}

// GetProfile retrieves the prompt-facing fields of a user and stamps them
// with the current server time as the visit date.
func (s *UserService) GetProfile(ctx context.Context, id int64) (models.Profile, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("Failed to acquire database connection")
		return models.Profile{}, err
	}
	defer conn.Close()

	profile := models.Profile{UserID: id}
	row := conn.QueryRowContext(ctx, "SELECT name, sex, age FROM users WHERE id = ?", id)
	if err := row.Scan(&profile.Name, &profile.Sex, &profile.Age); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, ErrUserNotFound
		}
		log.Error().Err(err).Int64("user_id", id).Msg("Failed to load user profile")
		return models.Profile{}, err
	}
	profile.VisitDate = s.now().Format(models.TimeLayout)
	return profile, nil
}

// Register creates a new user after checking the account is free, hashing their password.
func (s *UserService) Register(ctx context.Context, name, account, password string, age int, sex string) (models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		log.Error().Err(err).Str("account", account).Msg("Failed to acquire database connection")
		return models.User{}, err
	}
	defer conn.Close()

	var existing int64
	err = conn.QueryRowContext(ctx, "SELECT id FROM users WHERE account = ?", account).Scan(&existing)
	switch {
	case err == nil:
		return models.User{}, ErrAccountTaken
	case !errors.Is(err, sql.ErrNoRows):
		log.Error().Err(err).Str("account", account).Msg("Failed to check account availability")
		return models.User{}, err
	}

	user := models.User{
		Name:         name,
		Account:      account,
		PasswordHash: string(hashedPassword),
		Age:          age,
		Sex:          sex,
	}

	res, err := conn.ExecContext(ctx,
		"INSERT INTO users(name, account, password_hash, age, sex, created_at) VALUES(?, ?, ?, ?, ?, ?)",
		user.Name, user.Account, user.PasswordHash, user.Age, user.Sex, s.now().UTC().Format(storedTimeLayout))
	if err != nil {
		// Lost a race with a concurrent registration of the same account.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.User{}, ErrAccountTaken
		}
		log.Error().Err(err).Str("account", account).Msg("Failed to insert user")
		return models.User{}, err
	}
	if user.ID, err = res.LastInsertId(); err != nil {
		return models.User{}, err
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// Authenticate verifies a user's credentials.
func (s *UserService) Authenticate(ctx context.Context, account, password string) (models.User, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		log.Error().Err(err).Str("account", account).Msg("Failed to acquire database connection")
		return models.User{}, err
	}
	defer conn.Close()

	var user models.User
	row := conn.QueryRowContext(ctx, "SELECT id, name, account, password_hash, age, sex FROM users WHERE account = ?", account)
	err = row.Scan(&user.ID, &user.Name, &user.Account, &user.PasswordHash, &user.Age, &user.Sex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		log.Error().Err(err).Str("account", account).Msg("Failed to look up account")
		return models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}
