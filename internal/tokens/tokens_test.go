package tokens

import (
	"errors"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

func newTestConfig() Config {
	return Config{
		AccessSigningKey:  []byte("access-signing-key"),
		RefreshSigningKey: []byte("refresh-signing-key"),
		Issuer:            "vidtube",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        10 * 24 * time.Hour,
	}
}

func TestConfigValidateRejectsSharedKeys(t *testing.T) {
	t.Parallel()

	configuration := newTestConfig()
	configuration.RefreshSigningKey = configuration.AccessSigningKey
	if err := configuration.Validate(); !errors.Is(err, ErrSharedSigningKeys) {
		t.Fatalf("expected ErrSharedSigningKeys, got %v", err)
	}
}

func TestConfigValidateRejectsMissingPieces(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		mutate   func(*Config)
		expected error
	}{
		{name: "missing_access_key", mutate: func(c *Config) { c.AccessSigningKey = nil }, expected: ErrMissingAccessKey},
		{name: "missing_refresh_key", mutate: func(c *Config) { c.RefreshSigningKey = nil }, expected: ErrMissingRefreshKey},
		{name: "missing_issuer", mutate: func(c *Config) { c.Issuer = "  " }, expected: ErrMissingIssuer},
		{name: "zero_access_ttl", mutate: func(c *Config) { c.AccessTTL = 0 }, expected: ErrInvalidTTL},
		{name: "negative_refresh_ttl", mutate: func(c *Config) { c.RefreshTTL = -time.Minute }, expected: ErrInvalidTTL},
	}
	for _, testCase := range cases {
		configuration := newTestConfig()
		testCase.mutate(&configuration)
		if err := configuration.Validate(); !errors.Is(err, testCase.expected) {
			t.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, err)
		}
	}
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	configuration := newTestConfig()
	issuer, issuerErr := NewIssuer(configuration, fixedClock{timestamp: reference})
	if issuerErr != nil {
		t.Fatalf("unexpected issuer error: %v", issuerErr)
	}
	validator, validatorErr := NewValidator(configuration, fixedClock{timestamp: reference.Add(time.Minute)})
	if validatorErr != nil {
		t.Fatalf("unexpected validator error: %v", validatorErr)
	}

	accessToken, accessExpiry, accessErr := issuer.IssueAccessToken("user-123")
	if accessErr != nil {
		t.Fatalf("access mint error: %v", accessErr)
	}
	if !accessExpiry.Equal(reference.Add(configuration.AccessTTL)) {
		t.Fatalf("expected access expiry %v, got %v", reference.Add(configuration.AccessTTL), accessExpiry)
	}
	userID, validateErr := validator.ValidateAccess(accessToken)
	if validateErr != nil {
		t.Fatalf("access validate error: %v", validateErr)
	}
	if userID != "user-123" {
		t.Fatalf("expected user-123, got %s", userID)
	}

	refreshToken, _, refreshErr := issuer.IssueRefreshToken("user-123")
	if refreshErr != nil {
		t.Fatalf("refresh mint error: %v", refreshErr)
	}
	if refreshUserID, err := validator.ValidateRefresh(refreshToken); err != nil || refreshUserID != "user-123" {
		t.Fatalf("refresh validate failed: user=%s err=%v", refreshUserID, err)
	}
}

func TestValidateRejectsCrossTypeTokens(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	configuration := newTestConfig()
	issuer, _ := NewIssuer(configuration, fixedClock{timestamp: reference})
	validator, _ := NewValidator(configuration, fixedClock{timestamp: reference})

	accessToken, _, mintErr := issuer.IssueAccessToken("user-123")
	if mintErr != nil {
		t.Fatalf("mint error: %v", mintErr)
	}

	if _, err := validator.ValidateRefresh(accessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token must not validate as refresh token, got %v", err)
	}

	refreshToken, _, refreshMintErr := issuer.IssueRefreshToken("user-123")
	if refreshMintErr != nil {
		t.Fatalf("mint error: %v", refreshMintErr)
	}
	if _, err := validator.ValidateAccess(refreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token must not validate as access token, got %v", err)
	}
}

func TestValidateReportsExpiry(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	configuration := newTestConfig()
	issuer, _ := NewIssuer(configuration, fixedClock{timestamp: reference})
	lateValidator, _ := NewValidator(configuration, fixedClock{timestamp: reference.Add(configuration.AccessTTL + time.Minute)})

	accessToken, _, mintErr := issuer.IssueAccessToken("user-123")
	if mintErr != nil {
		t.Fatalf("mint error: %v", mintErr)
	}
	if _, err := lateValidator.ValidateAccess(accessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	t.Parallel()

	validator, _ := NewValidator(newTestConfig(), fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	for _, tokenString := range []string{"", "   ", "not-a-token", "aaa.bbb.ccc"} {
		if _, err := validator.ValidateAccess(tokenString); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", tokenString, err)
		}
	}
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	issuer, _ := NewIssuer(newTestConfig(), fixedClock{timestamp: time.Unix(1700000000, 0).UTC()})
	if _, _, err := issuer.IssueAccessToken("  "); !errors.Is(err, ErrEmptySubject) {
		t.Fatalf("expected ErrEmptySubject, got %v", err)
	}
}
