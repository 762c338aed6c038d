package userstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("user_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("user_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("user_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("user_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("user_store.unsupported_no_scheme")
)

// DatabaseStore persists user records using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	Username      string `gorm:"column:username;uniqueIndex;not null"`
	Email         string `gorm:"column:email;uniqueIndex;not null"`
	FullName      string `gorm:"column:full_name;not null"`
	PasswordHash  string `gorm:"column:password_hash;not null"`
	AvatarURL     string `gorm:"column:avatar_url;not null;default:''"`
	CoverImageURL string `gorm:"column:cover_image_url;not null;default:''"`
	RefreshToken  string `gorm:"column:refresh_token;not null;default:''"`
	CreatedAtUnix int64  `gorm:"column:created_at_unix;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

func (record userRecord) toUser() User {
	return User{
		ID:            record.UserID,
		Username:      record.Username,
		Email:         record.Email,
		FullName:      record.FullName,
		PasswordHash:  record.PasswordHash,
		AvatarURL:     record.AvatarURL,
		CoverImageURL: record.CoverImageURL,
		RefreshToken:  record.RefreshToken,
		CreatedAtUnix: record.CreatedAtUnix,
		UpdatedAtUnix: record.UpdatedAtUnix,
	}
}

// NewDatabaseStore constructs a GORM-backed store from a database URL
// (postgres:// or sqlite://) and migrates the users table.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("user_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("user_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Create inserts a record after checking username and email uniqueness.
func (store *DatabaseStore) Create(ctx context.Context, user User) error {
	username := strings.ToLower(user.Username)
	email := strings.ToLower(user.Email)

	var existingCount int64
	countErr := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("username = ? OR email = ?", username, email).
		Count(&existingCount).Error
	if countErr != nil {
		return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, countErr)
	}
	if existingCount > 0 {
		return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrDuplicateUser)
	}

	nowUnix := time.Now().UTC().Unix()
	record := userRecord{
		UserID:        user.ID,
		Username:      username,
		Email:         email,
		FullName:      user.FullName,
		PasswordHash:  user.PasswordHash,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		RefreshToken:  user.RefreshToken,
		CreatedAtUnix: nowUnix,
		UpdatedAtUnix: nowUnix,
	}
	if createErr := store.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		return fmt.Errorf("user_store.create.%s: %w", store.driverLabel, createErr)
	}
	return nil
}

// FindByID loads a record by its primary key.
func (store *DatabaseStore) FindByID(ctx context.Context, userID string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.find_by_id.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

// FindByUsernameOrEmail loads a record matching either identity field.
func (store *DatabaseStore) FindByUsernameOrEmail(ctx context.Context, username string, email string) (User, error) {
	query := store.db.WithContext(ctx)
	switch {
	case username != "" && email != "":
		query = query.Where("username = ? OR email = ?", strings.ToLower(username), strings.ToLower(email))
	case username != "":
		query = query.Where("username = ?", strings.ToLower(username))
	case email != "":
		query = query.Where("email = ?", strings.ToLower(email))
	default:
		return User{}, fmt.Errorf("user_store.find_by_identity.%s: %w", store.driverLabel, ErrUserNotFound)
	}
	var record userRecord
	if err := query.Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find_by_identity.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.find_by_identity.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

// UpdateRefreshToken overwrites the refresh token column in a single
// UPDATE; an empty value clears it. The narrow column write keeps the
// operation atomic and skips record-level hooks.
func (store *DatabaseStore) UpdateRefreshToken(ctx context.Context, userID string, refreshToken string) error {
	return store.updateColumns(ctx, userID, "user_store.update_refresh_token", map[string]interface{}{
		"refresh_token": refreshToken,
	})
}

// UpdatePasswordHash overwrites the password hash column.
func (store *DatabaseStore) UpdatePasswordHash(ctx context.Context, userID string, passwordHash string) error {
	return store.updateColumns(ctx, userID, "user_store.update_password", map[string]interface{}{
		"password_hash": passwordHash,
	})
}

// UpdateProfile applies the non-empty profile fields and reloads the record.
func (store *DatabaseStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	changes := make(map[string]interface{})
	if update.Username != "" {
		username := strings.ToLower(update.Username)
		if taken, takenErr := store.identityTaken(ctx, "username", username, userID); takenErr != nil {
			return User{}, takenErr
		} else if taken {
			return User{}, fmt.Errorf("user_store.update_profile.%s: %w", store.driverLabel, ErrDuplicateUser)
		}
		changes["username"] = username
	}
	if update.Email != "" {
		email := strings.ToLower(update.Email)
		if taken, takenErr := store.identityTaken(ctx, "email", email, userID); takenErr != nil {
			return User{}, takenErr
		} else if taken {
			return User{}, fmt.Errorf("user_store.update_profile.%s: %w", store.driverLabel, ErrDuplicateUser)
		}
		changes["email"] = email
	}
	if update.FullName != "" {
		changes["full_name"] = update.FullName
	}
	if len(changes) > 0 {
		if err := store.updateColumns(ctx, userID, "user_store.update_profile", changes); err != nil {
			return User{}, err
		}
	}
	return store.FindByID(ctx, userID)
}

func (store *DatabaseStore) identityTaken(ctx context.Context, column string, value string, excludeUserID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&userRecord{}).
		Where(column+" = ? AND user_id <> ?", value, excludeUserID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("user_store.update_profile.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

func (store *DatabaseStore) updateColumns(ctx context.Context, userID string, code string, changes map[string]interface{}) error {
	changes["updated_at_unix"] = time.Now().UTC().Unix()
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("user_id = ?", userID).
		Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("%s.%s: %w", code, store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var record userRecord
		findErr := store.db.WithContext(ctx).Where("user_id = ?", userID).Take(&record).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s.%s: %w", code, store.driverLabel, ErrUserNotFound)
		}
		if findErr != nil {
			return fmt.Errorf("%s.%s: %w", code, store.driverLabel, findErr)
		}
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("user_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("user_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("user_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("user_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
