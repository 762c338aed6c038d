// Package userstorepg implements the user store against PostgreSQL with
// raw SQL over pgx, for deployments that prefer explicit statements over
// the GORM-backed store.
package userstorepg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/vidtube/internal/userstore"
)

// PostgresUserStore persists user records in PostgreSQL.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore constructs a Postgres store.
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

const userColumns = `user_id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at_unix, updated_at_unix`

func scanUser(row pgx.Row) (userstore.User, error) {
	var user userstore.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.RefreshToken,
		&user.CreatedAtUnix,
		&user.UpdatedAtUnix,
	)
	return user, err
}

// Create inserts a record after checking username and email uniqueness.
func (store *PostgresUserStore) Create(ctx context.Context, user userstore.User) error {
	username := strings.ToLower(user.Username)
	email := strings.ToLower(user.Email)

	var existingCount int64
	countErr := store.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2
`, username, email).Scan(&existingCount)
	if countErr != nil {
		return fmt.Errorf("user_store.create.pg: %w", countErr)
	}
	if existingCount > 0 {
		return fmt.Errorf("user_store.create.pg: %w", userstore.ErrDuplicateUser)
	}

	nowUnix := time.Now().UTC().Unix()
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO users (user_id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at_unix, updated_at_unix)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
`, user.ID, username, email, user.FullName, user.PasswordHash, user.AvatarURL, user.CoverImageURL, user.RefreshToken, nowUnix)
	if execErr != nil {
		return fmt.Errorf("user_store.create.pg: %w", execErr)
	}
	return nil
}

// FindByID loads a record by its primary key.
func (store *PostgresUserStore) FindByID(ctx context.Context, userID string) (userstore.User, error) {
	row := store.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	user, scanErr := scanUser(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return userstore.User{}, fmt.Errorf("user_store.find_by_id.pg: %w", userstore.ErrUserNotFound)
		}
		return userstore.User{}, fmt.Errorf("user_store.find_by_id.pg: %w", scanErr)
	}
	return user, nil
}

// FindByUsernameOrEmail loads a record matching either identity field.
func (store *PostgresUserStore) FindByUsernameOrEmail(ctx context.Context, username string, email string) (userstore.User, error) {
	if username == "" && email == "" {
		return userstore.User{}, fmt.Errorf("user_store.find_by_identity.pg: %w", userstore.ErrUserNotFound)
	}
	row := store.pool.QueryRow(ctx, `
SELECT `+userColumns+` FROM users
WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
`, strings.ToLower(username), strings.ToLower(email))
	user, scanErr := scanUser(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return userstore.User{}, fmt.Errorf("user_store.find_by_identity.pg: %w", userstore.ErrUserNotFound)
		}
		return userstore.User{}, fmt.Errorf("user_store.find_by_identity.pg: %w", scanErr)
	}
	return user, nil
}

// UpdateRefreshToken overwrites the refresh token column in a single UPDATE.
func (store *PostgresUserStore) UpdateRefreshToken(ctx context.Context, userID string, refreshToken string) error {
	commandTag, execErr := store.pool.Exec(ctx, `
UPDATE users SET refresh_token = $1, updated_at_unix = $2 WHERE user_id = $3
`, refreshToken, time.Now().UTC().Unix(), userID)
	if execErr != nil {
		return fmt.Errorf("user_store.update_refresh_token.pg: %w", execErr)
	}
	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("user_store.update_refresh_token.pg: %w", userstore.ErrUserNotFound)
	}
	return nil
}

// UpdatePasswordHash overwrites the password hash column.
func (store *PostgresUserStore) UpdatePasswordHash(ctx context.Context, userID string, passwordHash string) error {
	commandTag, execErr := store.pool.Exec(ctx, `
UPDATE users SET password_hash = $1, updated_at_unix = $2 WHERE user_id = $3
`, passwordHash, time.Now().UTC().Unix(), userID)
	if execErr != nil {
		return fmt.Errorf("user_store.update_password.pg: %w", execErr)
	}
	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("user_store.update_password.pg: %w", userstore.ErrUserNotFound)
	}
	return nil
}

// UpdateProfile applies the non-empty profile fields and reloads the record.
func (store *PostgresUserStore) UpdateProfile(ctx context.Context, userID string, update userstore.ProfileUpdate) (userstore.User, error) {
	if update.Username != "" {
		if err := store.checkIdentityFree(ctx, "username", strings.ToLower(update.Username), userID); err != nil {
			return userstore.User{}, err
		}
	}
	if update.Email != "" {
		if err := store.checkIdentityFree(ctx, "email", strings.ToLower(update.Email), userID); err != nil {
			return userstore.User{}, err
		}
	}

	commandTag, execErr := store.pool.Exec(ctx, `
UPDATE users SET
    username = CASE WHEN $1 <> '' THEN $1 ELSE username END,
    email = CASE WHEN $2 <> '' THEN $2 ELSE email END,
    full_name = CASE WHEN $3 <> '' THEN $3 ELSE full_name END,
    updated_at_unix = $4
WHERE user_id = $5
`, strings.ToLower(update.Username), strings.ToLower(update.Email), update.FullName, time.Now().UTC().Unix(), userID)
	if execErr != nil {
		return userstore.User{}, fmt.Errorf("user_store.update_profile.pg: %w", execErr)
	}
	if commandTag.RowsAffected() == 0 {
		return userstore.User{}, fmt.Errorf("user_store.update_profile.pg: %w", userstore.ErrUserNotFound)
	}
	return store.FindByID(ctx, userID)
}

func (store *PostgresUserStore) checkIdentityFree(ctx context.Context, column string, value string, excludeUserID string) error {
	var count int64
	err := store.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM users WHERE `+column+` = $1 AND user_id <> $2
`, value, excludeUserID).Scan(&count)
	if err != nil {
		return fmt.Errorf("user_store.update_profile.pg: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("user_store.update_profile.pg: %w", userstore.ErrDuplicateUser)
	}
	return nil
}
