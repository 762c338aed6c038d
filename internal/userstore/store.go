// Package userstore persists user identity records. Exactly one refresh
// token lives on each record; writing a new one atomically replaces the old,
// which is what revokes any previously issued refresh token for that user.
package userstore

import (
	"context"
	"errors"
)

// Sentinel errors shared by every Store implementation.
var (
	// ErrUserNotFound indicates no record matched the lookup.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrDuplicateUser indicates the username or email is already taken.
	ErrDuplicateUser = errors.New("user_store.duplicate")
)

// User is the stored identity record. PasswordHash and RefreshToken never
// leave the service; Sanitized strips them before transmission.
type User struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
	RefreshToken  string
	CreatedAtUnix int64
	UpdatedAtUnix int64
}

// Public is the sanitized wire view of a user record.
type Public struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	AvatarURL     string `json:"avatar"`
	CoverImageURL string `json:"coverImage,omitempty"`
	CreatedAtUnix int64  `json:"createdAt"`
}

// Sanitized returns the record with password hash and refresh token removed.
func (user User) Sanitized() Public {
	return Public{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAtUnix: user.CreatedAtUnix,
	}
}

// ProfileUpdate carries the mutable profile fields. Empty fields are left
// unchanged; callers validate that at least one field is present.
type ProfileUpdate struct {
	FullName string
	Email    string
	Username string
}

// Store persists and retrieves user records. Implementations must make the
// single-column token and password writes atomic single-record updates; the
// narrow writes deliberately bypass any full-record hooks so persisting a
// refresh token never re-triggers password hashing.
type Store interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, userID string) (User, error)
	FindByUsernameOrEmail(ctx context.Context, username string, email string) (User, error)
	UpdateRefreshToken(ctx context.Context, userID string, refreshToken string) error
	UpdatePasswordHash(ctx context.Context, userID string, passwordHash string) error
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error)
}
