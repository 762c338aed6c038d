// Package tokens mints and validates the paired access/refresh JWTs. Access
// tokens are stateless; refresh tokens are additionally checked against the
// single value persisted on the user record by the session flows.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors exposed by mint and parse operations.
var (
	ErrMissingAccessKey  = errors.New("tokens.config.missing_access_key")
	ErrMissingRefreshKey = errors.New("tokens.config.missing_refresh_key")
	ErrSharedSigningKeys = errors.New("tokens.config.shared_signing_keys")
	ErrMissingIssuer     = errors.New("tokens.config.missing_issuer")
	ErrInvalidTTL        = errors.New("tokens.config.invalid_ttl")
	ErrEmptySubject      = errors.New("tokens.mint.empty_subject")
	ErrTokenExpired      = errors.New("tokens.parse.expired")
	ErrTokenInvalid      = errors.New("tokens.parse.invalid")
)

// Config holds the immutable signing material and lifetimes for both token
// types. The access and refresh keys must differ so a token minted for one
// purpose can never validate as the other.
type Config struct {
	AccessSigningKey  []byte
	RefreshSigningKey []byte
	Issuer            string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
}

// Validate checks the configuration is complete and internally consistent.
func (configuration Config) Validate() error {
	if len(configuration.AccessSigningKey) == 0 {
		return ErrMissingAccessKey
	}
	if len(configuration.RefreshSigningKey) == 0 {
		return ErrMissingRefreshKey
	}
	if string(configuration.AccessSigningKey) == string(configuration.RefreshSigningKey) {
		return ErrSharedSigningKeys
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return ErrMissingIssuer
	}
	if configuration.AccessTTL <= 0 || configuration.RefreshTTL <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// SessionClaims is the claim set carried by both token types. The user
// identifier is the only required application claim.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Issuer mints access and refresh tokens for a user identity. Minting a
// refresh token does not persist it; persistence belongs to the session
// flows so the store write stays a single narrow update.
type Issuer struct {
	configuration Config
	clock         Clock
}

// NewIssuer constructs an Issuer after validating the configuration.
func NewIssuer(configuration Config, clock Clock) (*Issuer, error) {
	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("tokens.new_issuer: %w", err)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Issuer{configuration: configuration, clock: clock}, nil
}

// IssueAccessToken mints a short-lived access token for the user.
func (issuer *Issuer) IssueAccessToken(userID string) (string, time.Time, error) {
	return issuer.mint(userID, issuer.configuration.AccessSigningKey, issuer.configuration.AccessTTL)
}

// IssueRefreshToken mints a long-lived refresh token for the user.
func (issuer *Issuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	return issuer.mint(userID, issuer.configuration.RefreshSigningKey, issuer.configuration.RefreshTTL)
}

func (issuer *Issuer) mint(userID string, signingKey []byte, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("tokens.mint: %w", ErrEmptySubject)
	}
	issuedAt := issuer.clock.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer.configuration.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("tokens.mint: %w", signErr)
	}
	return signed, expiresAt, nil
}

// Validator checks signature, expiry, and issuer of presented tokens.
type Validator struct {
	configuration Config
	clock         Clock
}

// NewValidator constructs a Validator after validating the configuration.
func NewValidator(configuration Config, clock Clock) (*Validator, error) {
	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("tokens.new_validator: %w", err)
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Validator{configuration: configuration, clock: clock}, nil
}

// ValidateAccess parses an access token and returns the subject user ID.
func (validator *Validator) ValidateAccess(tokenString string) (string, error) {
	return validator.parse(tokenString, validator.configuration.AccessSigningKey)
}

// ValidateRefresh parses a refresh token and returns the subject user ID.
// Callers must still byte-compare the presented token against the value
// stored for that user; a structurally valid token that no longer matches
// the stored one is stale.
func (validator *Validator) ValidateRefresh(tokenString string) (string, error) {
	return validator.parse(tokenString, validator.configuration.RefreshSigningKey)
}

func (validator *Validator) parse(tokenString string, signingKey []byte) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("tokens.parse: %w", ErrTokenInvalid)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return validator.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("tokens.parse: %w", ErrTokenExpired)
		}
		return "", fmt.Errorf("tokens.parse: %w", ErrTokenInvalid)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return "", fmt.Errorf("tokens.parse: %w", ErrTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*SessionClaims)
	if !ok || claims.UserID == "" {
		return "", fmt.Errorf("tokens.parse: %w", ErrTokenInvalid)
	}
	if claims.Issuer != validator.configuration.Issuer {
		return "", fmt.Errorf("tokens.parse: %w", ErrTokenInvalid)
	}
	return claims.UserID, nil
}
