package userstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store intended for tests and dev runs.
type MemoryStore struct {
	mutex      sync.Mutex
	byID       map[string]*User
	byUsername map[string]string
	byEmail    map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// Create inserts a record, rejecting duplicate usernames or emails.
func (store *MemoryStore) Create(ctx context.Context, user User) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	username := strings.ToLower(user.Username)
	email := strings.ToLower(user.Email)
	if _, exists := store.byUsername[username]; exists {
		return fmt.Errorf("user_store.create: %w", ErrDuplicateUser)
	}
	if _, exists := store.byEmail[email]; exists {
		return fmt.Errorf("user_store.create: %w", ErrDuplicateUser)
	}

	record := user
	record.Username = username
	record.Email = email
	nowUnix := time.Now().UTC().Unix()
	record.CreatedAtUnix = nowUnix
	record.UpdatedAtUnix = nowUnix

	store.byID[record.ID] = &record
	store.byUsername[username] = record.ID
	store.byEmail[email] = record.ID
	return nil
}

// FindByID returns the record for the user ID.
func (store *MemoryStore) FindByID(ctx context.Context, userID string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[userID]
	if record == nil {
		return User{}, fmt.Errorf("user_store.find_by_id: %w", ErrUserNotFound)
	}
	return *record, nil
}

// FindByUsernameOrEmail returns the record matching either identity field.
func (store *MemoryStore) FindByUsernameOrEmail(ctx context.Context, username string, email string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if username != "" {
		if userID, ok := store.byUsername[strings.ToLower(username)]; ok {
			return *store.byID[userID], nil
		}
	}
	if email != "" {
		if userID, ok := store.byEmail[strings.ToLower(email)]; ok {
			return *store.byID[userID], nil
		}
	}
	return User{}, fmt.Errorf("user_store.find_by_identity: %w", ErrUserNotFound)
}

// UpdateRefreshToken overwrites the stored refresh token; empty clears it.
func (store *MemoryStore) UpdateRefreshToken(ctx context.Context, userID string, refreshToken string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[userID]
	if record == nil {
		return fmt.Errorf("user_store.update_refresh_token: %w", ErrUserNotFound)
	}
	record.RefreshToken = refreshToken
	record.UpdatedAtUnix = time.Now().UTC().Unix()
	return nil
}

// UpdatePasswordHash overwrites the stored password hash.
func (store *MemoryStore) UpdatePasswordHash(ctx context.Context, userID string, passwordHash string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[userID]
	if record == nil {
		return fmt.Errorf("user_store.update_password: %w", ErrUserNotFound)
	}
	record.PasswordHash = passwordHash
	record.UpdatedAtUnix = time.Now().UTC().Unix()
	return nil
}

// UpdateProfile applies the non-empty fields and returns the updated record.
func (store *MemoryStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[userID]
	if record == nil {
		return User{}, fmt.Errorf("user_store.update_profile: %w", ErrUserNotFound)
	}

	if update.Username != "" {
		username := strings.ToLower(update.Username)
		if existingID, taken := store.byUsername[username]; taken && existingID != userID {
			return User{}, fmt.Errorf("user_store.update_profile: %w", ErrDuplicateUser)
		}
		delete(store.byUsername, record.Username)
		record.Username = username
		store.byUsername[username] = userID
	}
	if update.Email != "" {
		email := strings.ToLower(update.Email)
		if existingID, taken := store.byEmail[email]; taken && existingID != userID {
			return User{}, fmt.Errorf("user_store.update_profile: %w", ErrDuplicateUser)
		}
		delete(store.byEmail, record.Email)
		record.Email = email
		store.byEmail[email] = userID
	}
	if update.FullName != "" {
		record.FullName = update.FullName
	}
	record.UpdatedAtUnix = time.Now().UTC().Unix()
	return *record, nil
}
