// Package session orchestrates the authentication flows: registration,
// login, logout, refresh-token rotation, password change, and profile
// updates. Each flow is a short pipeline with early-exit failure points;
// failures travel as apierror carriers to the transport boundary.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyemirov/vidtube/internal/apierror"
	"github.com/tyemirov/vidtube/internal/media"
	"github.com/tyemirov/vidtube/internal/password"
	"github.com/tyemirov/vidtube/internal/tokens"
	"github.com/tyemirov/vidtube/internal/userstore"
)

// FileInput carries one uploaded file part into the register flow.
type FileInput struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// RegisterInput carries the multipart register fields.
type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     *FileInput
	CoverImage *FileInput
}

// LoginInput carries the login credentials; username or email suffices.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// ProfileInput carries the PATCH profile fields; blanks mean unchanged.
type ProfileInput struct {
	FullName string
	Email    string
	Username string
}

// TokenPair is the dual-token result of login and refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult bundles the sanitized user with the freshly minted tokens.
type LoginResult struct {
	User   userstore.Public
	Tokens TokenPair
}

// Controller drives the session flows against the user store, the token
// issuer/validator, and the media collaborator.
type Controller struct {
	users     userstore.Store
	uploader  media.Uploader
	issuer    *tokens.Issuer
	validator *tokens.Validator
	logger    *zap.Logger
	metrics   MetricsRecorder
}

// NewController wires the collaborators together. Logger and metrics may be
// nil; they default to no-ops.
func NewController(users userstore.Store, uploader media.Uploader, issuer *tokens.Issuer, validator *tokens.Validator, logger *zap.Logger, metrics MetricsRecorder) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Controller{
		users:     users,
		uploader:  uploader,
		issuer:    issuer,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
	}
}

// Register validates the input, checks identity uniqueness before any side
// effect, uploads the media assets, and creates the record. The record
// creation is the only state mutation; failure at any earlier step leaves
// no partial record behind.
func (controller *Controller) Register(ctx context.Context, input RegisterInput) (userstore.Public, error) {
	var blankFields []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{name: "username", value: input.Username},
		{name: "email", value: input.Email},
		{name: "fullName", value: input.FullName},
		{name: "password", value: input.Password},
	} {
		if strings.TrimSpace(field.value) == "" {
			blankFields = append(blankFields, field.name+" is required")
		}
	}
	if len(blankFields) > 0 {
		return userstore.Public{}, fmt.Errorf("session.register: %w", apierror.BadRequest("all fields are required", blankFields...))
	}

	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := strings.ToLower(strings.TrimSpace(input.Email))

	_, lookupErr := controller.users.FindByUsernameOrEmail(ctx, username, email)
	if lookupErr == nil {
		return userstore.Public{}, fmt.Errorf("session.register: %w", apierror.BadRequest("user already exists"))
	}
	if !errors.Is(lookupErr, userstore.ErrUserNotFound) {
		return userstore.Public{}, controller.internalError("session.register.lookup", lookupErr)
	}

	if input.Avatar == nil {
		return userstore.Public{}, fmt.Errorf("session.register: %w", apierror.BadRequest("avatar file is required"))
	}

	avatarKey := media.StorageKey("avatars", input.Avatar.FileName)
	avatarURL, avatarErr := controller.uploader.Upload(ctx, avatarKey, input.Avatar.ContentType, input.Avatar.Content)
	if avatarErr != nil {
		controller.logger.Warn("avatar upload failed",
			zap.String("code", "session.register.avatar_upload"),
			zap.Error(avatarErr))
		return userstore.Public{}, fmt.Errorf("session.register: %w", apierror.BadRequest("avatar upload failed"))
	}

	coverImageURL := ""
	if input.CoverImage != nil {
		coverKey := media.StorageKey("covers", input.CoverImage.FileName)
		uploadedCoverURL, coverErr := controller.uploader.Upload(ctx, coverKey, input.CoverImage.ContentType, input.CoverImage.Content)
		if coverErr != nil {
			// The cover image is optional; a failed upload degrades to none.
			controller.logger.Warn("cover image upload failed",
				zap.String("code", "session.register.cover_upload"),
				zap.Error(coverErr))
		} else {
			coverImageURL = uploadedCoverURL
		}
	}

	passwordHash, hashErr := password.Hash(input.Password)
	if hashErr != nil {
		return userstore.Public{}, controller.internalError("session.register.hash", hashErr)
	}

	userID := uuid.NewString()
	createErr := controller.users.Create(ctx, userstore.User{
		ID:            userID,
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(input.FullName),
		PasswordHash:  passwordHash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
	})
	if createErr != nil {
		if errors.Is(createErr, userstore.ErrDuplicateUser) {
			return userstore.Public{}, fmt.Errorf("session.register: %w", apierror.BadRequest("user already exists"))
		}
		return userstore.Public{}, controller.internalError("session.register.create", createErr)
	}

	created, fetchErr := controller.users.FindByID(ctx, userID)
	if fetchErr != nil {
		return userstore.Public{}, controller.internalError("session.register.fetch", fetchErr)
	}

	controller.metrics.Increment("register.success")
	return created.Sanitized(), nil
}

// Login verifies the credentials and issues a fresh token pair, persisting
// the refresh token onto the record. The write overwrites any previous
// token, which immediately invalidates the prior session.
func (controller *Controller) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	if strings.TrimSpace(input.Username) == "" && strings.TrimSpace(input.Email) == "" {
		return LoginResult{}, fmt.Errorf("session.login: %w", apierror.BadRequest("username or email is required"))
	}
	if input.Password == "" {
		return LoginResult{}, fmt.Errorf("session.login: %w", apierror.BadRequest("password is required"))
	}

	user, findErr := controller.users.FindByUsernameOrEmail(ctx, strings.TrimSpace(input.Username), strings.TrimSpace(input.Email))
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) {
			controller.metrics.Increment("login.unknown_user")
			return LoginResult{}, fmt.Errorf("session.login: %w", apierror.NotFound("user does not exist"))
		}
		return LoginResult{}, controller.internalError("session.login.lookup", findErr)
	}

	if !password.Verify(input.Password, user.PasswordHash) {
		controller.metrics.Increment("login.bad_password")
		return LoginResult{}, fmt.Errorf("session.login: %w", apierror.Unauthorized("invalid credentials"))
	}

	pair, pairErr := controller.issueAndPersistPair(ctx, user.ID)
	if pairErr != nil {
		return LoginResult{}, pairErr
	}

	controller.metrics.Increment("login.success")
	return LoginResult{User: user.Sanitized(), Tokens: pair}, nil
}

// Logout clears the stored refresh token before responding, so the previous
// refresh token can never be replayed after the call returns.
func (controller *Controller) Logout(ctx context.Context, userID string) error {
	if clearErr := controller.users.UpdateRefreshToken(ctx, userID, ""); clearErr != nil {
		if errors.Is(clearErr, userstore.ErrUserNotFound) {
			return fmt.Errorf("session.logout: %w", apierror.Unauthorized("invalid session"))
		}
		return controller.internalError("session.logout.clear", clearErr)
	}
	controller.metrics.Increment("logout.success")
	return nil
}

// Refresh validates the presented refresh token, byte-compares it against
// the stored one, and rotates the pair. Any parse failure, including a
// tampered or cross-type token, flattens to a single 401.
func (controller *Controller) Refresh(ctx context.Context, presentedToken string) (TokenPair, error) {
	if strings.TrimSpace(presentedToken) == "" {
		return TokenPair{}, fmt.Errorf("session.refresh: %w", apierror.Unauthorized("refresh token is required"))
	}

	userID, parseErr := controller.validator.ValidateRefresh(presentedToken)
	if parseErr != nil {
		controller.metrics.Increment("refresh.invalid_token")
		return TokenPair{}, fmt.Errorf("session.refresh: %w", apierror.Unauthorized("invalid or expired refresh token"))
	}

	user, findErr := controller.users.FindByID(ctx, userID)
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) {
			return TokenPair{}, fmt.Errorf("session.refresh: %w", apierror.Unauthorized("invalid or expired refresh token"))
		}
		return TokenPair{}, controller.internalError("session.refresh.lookup", findErr)
	}

	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(presentedToken)) != 1 {
		controller.metrics.Increment("refresh.stale")
		return TokenPair{}, fmt.Errorf("session.refresh: %w", apierror.Unauthorized("refresh token is no longer valid"))
	}

	pair, pairErr := controller.issueAndPersistPair(ctx, user.ID)
	if pairErr != nil {
		return TokenPair{}, pairErr
	}

	controller.metrics.Increment("refresh.success")
	return pair, nil
}

// ChangePassword verifies the old password and re-hashes the new one. The
// stored refresh token is left untouched: an existing session stays valid
// after a password change.
func (controller *Controller) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("session.change_password: %w", apierror.BadRequest("old and new passwords are required"))
	}

	user, findErr := controller.users.FindByID(ctx, userID)
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) {
			return fmt.Errorf("session.change_password: %w", apierror.Unauthorized("invalid session"))
		}
		return controller.internalError("session.change_password.lookup", findErr)
	}

	if !password.Verify(oldPassword, user.PasswordHash) {
		controller.metrics.Increment("change_password.bad_password")
		return fmt.Errorf("session.change_password: %w", apierror.Unauthorized("incorrect old password"))
	}

	newHash, hashErr := password.Hash(newPassword)
	if hashErr != nil {
		return controller.internalError("session.change_password.hash", hashErr)
	}
	if updateErr := controller.users.UpdatePasswordHash(ctx, userID, newHash); updateErr != nil {
		return controller.internalError("session.change_password.update", updateErr)
	}

	controller.metrics.Increment("change_password.success")
	return nil
}

// UpdateProfile applies a partial identity update and returns the
// sanitized record.
func (controller *Controller) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (userstore.Public, error) {
	update := userstore.ProfileUpdate{
		FullName: strings.TrimSpace(input.FullName),
		Email:    strings.TrimSpace(input.Email),
		Username: strings.TrimSpace(input.Username),
	}
	if update.FullName == "" && update.Email == "" && update.Username == "" {
		return userstore.Public{}, fmt.Errorf("session.update_profile: %w", apierror.BadRequest("at least one field is required"))
	}

	updated, updateErr := controller.users.UpdateProfile(ctx, userID, update)
	if updateErr != nil {
		switch {
		case errors.Is(updateErr, userstore.ErrUserNotFound):
			return userstore.Public{}, fmt.Errorf("session.update_profile: %w", apierror.NotFound("user does not exist"))
		case errors.Is(updateErr, userstore.ErrDuplicateUser):
			return userstore.Public{}, fmt.Errorf("session.update_profile: %w", apierror.BadRequest("username or email already in use"))
		default:
			return userstore.Public{}, controller.internalError("session.update_profile", updateErr)
		}
	}
	return updated.Sanitized(), nil
}

// CurrentUser resolves the sanitized record for an authenticated caller.
func (controller *Controller) CurrentUser(ctx context.Context, userID string) (userstore.Public, error) {
	user, findErr := controller.users.FindByID(ctx, userID)
	if findErr != nil {
		if errors.Is(findErr, userstore.ErrUserNotFound) {
			return userstore.Public{}, fmt.Errorf("session.current_user: %w", apierror.Unauthorized("invalid session"))
		}
		return userstore.Public{}, controller.internalError("session.current_user", findErr)
	}
	return user.Sanitized(), nil
}

func (controller *Controller) issueAndPersistPair(ctx context.Context, userID string) (TokenPair, error) {
	accessToken, accessExpiresAt, accessErr := controller.issuer.IssueAccessToken(userID)
	if accessErr != nil {
		return TokenPair{}, controller.internalError("session.mint.access", accessErr)
	}
	refreshToken, refreshExpiresAt, refreshErr := controller.issuer.IssueRefreshToken(userID)
	if refreshErr != nil {
		return TokenPair{}, controller.internalError("session.mint.refresh", refreshErr)
	}
	if persistErr := controller.users.UpdateRefreshToken(ctx, userID, refreshToken); persistErr != nil {
		return TokenPair{}, controller.internalError("session.mint.persist", persistErr)
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (controller *Controller) internalError(code string, cause error) error {
	controller.logger.Error("session flow failure",
		zap.String("code", code),
		zap.Error(cause))
	return fmt.Errorf("%s: %w", code, apierror.Internal("internal server error"))
}
