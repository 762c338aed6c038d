package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresAccessSigningKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when access_jwt_signing_key is missing")
	}
	expectedMessage := "config.missing_access_jwt_signing_key: access_jwt_signing_key must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresRefreshSigningKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when refresh_jwt_signing_key is missing")
	}
	expectedMessage := "config.missing_refresh_jwt_signing_key: refresh_jwt_signing_key must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRejectsSharedSigningKeys(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("access_jwt_signing_key", "same-secret")
	viper.Set("refresh_jwt_signing_key", "same-secret")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when signing keys are shared")
	}
	expectedMessage := "config.shared_signing_keys: access and refresh signing keys must differ"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresPositiveAccessTTL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("access_ttl", 0)
	viper.Set("refresh_ttl", time.Hour)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when access_ttl is non-positive")
	}

	expectedMessage := "config.invalid_access_ttl: access_ttl must be greater than zero"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresLongerRefreshTTL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("access_ttl", time.Hour)
	viper.Set("refresh_ttl", time.Minute)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when refresh_ttl does not exceed access_ttl")
	}

	expectedMessage := "config.invalid_refresh_ttl: refresh_ttl must exceed access_ttl"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRejectsUnknownStoreDriver(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)
	viper.Set("user_store_driver", "mongo")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error for unknown store driver")
	}

	expectedMessage := "config.invalid_user_store_driver: user_store_driver must be gorm or pgx"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestRunServerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	viper.Set("listen_addr", ":0")
	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("cookie_domain", "localhost")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)
	viper.Set("dev_insecure_http", true)
	viper.Set("database_url", "sqlite://file:main_test_run?mode=memory&cache=shared")
	viper.Set("enable_cors", true)
	viper.Set("cors_allowed_origins", []string{"https://app.example.com"})

	settings, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, settings))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed, got %v", err)
	}
}

func TestRunServerInMemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	viper.Set("listen_addr", ":0")
	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)
	viper.Set("dev_insecure_http", true)

	settings, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, settings))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed with in-memory store, got %v", err)
	}
}

func TestRunServerIncompleteS3Config(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	viper.Set("listen_addr", ":0")
	viper.Set("access_jwt_signing_key", "access-secret")
	viper.Set("refresh_jwt_signing_key", "refresh-secret")
	viper.Set("access_ttl", time.Minute)
	viper.Set("refresh_ttl", time.Hour)
	viper.Set("s3_region", "us-east-1")

	settings, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, settings))

	runErr := runServer(command, nil)
	if runErr == nil {
		t.Fatalf("expected error for incomplete s3 configuration")
	}
	expectedMessage := "config.incomplete_s3_config: s3_region and s3_bucket must both be provided"
	if runErr.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, runErr.Error())
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}
