package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/vidtube/internal/media"
	"github.com/tyemirov/vidtube/internal/session"
	"github.com/tyemirov/vidtube/internal/tokens"
	"github.com/tyemirov/vidtube/internal/userapi"
	"github.com/tyemirov/vidtube/internal/userstore"
	"github.com/tyemirov/vidtube/internal/userstorepg"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "vidtube",
		Short:   "User auth service with credential login, JWT sessions, rotating refresh tokens, and media uploads",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("access_jwt_signing_key", "", "HS256 signing secret for access JWT")
	rootCmd.Flags().String("refresh_jwt_signing_key", "", "HS256 signing secret for refresh JWT")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 10*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().String("database_url", "", "Database URL for users (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().String("user_store_driver", "gorm", "Persistent store driver: gorm or pgx (pgx requires a postgres database_url)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().Int64("json_body_limit", 16<<10, "Maximum JSON request body size in bytes")
	rootCmd.Flags().Int64("register_body_limit", 8<<20, "Maximum multipart registration body size in bytes")
	rootCmd.Flags().String("s3_region", "", "S3 region for media uploads (leave empty for in-memory uploads)")
	rootCmd.Flags().String("s3_bucket", "", "S3 bucket for media uploads")
	rootCmd.Flags().String("s3_endpoint", "", "Custom S3 endpoint, e.g. a MinIO address")
	rootCmd.Flags().String("s3_access_key_id", "", "S3 access key ID")
	rootCmd.Flags().String("s3_secret_key", "", "S3 secret access key")
	rootCmd.Flags().String("s3_public_base_url", "", "Public base URL for uploaded objects")

	for _, name := range []string{
		"listen_addr", "cookie_domain", "access_jwt_signing_key", "refresh_jwt_signing_key",
		"access_ttl", "refresh_ttl", "dev_insecure_http", "database_url", "user_store_driver",
		"enable_cors", "cors_allowed_origins", "json_body_limit", "register_body_limit",
		"s3_region", "s3_bucket", "s3_endpoint", "s3_access_key_id", "s3_secret_key", "s3_public_base_url",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	tokenIssuerName = "vidtube"

	configCodeMissingAccessKey        = "config.missing_access_jwt_signing_key"
	configCodeMissingRefreshKey       = "config.missing_refresh_jwt_signing_key"
	configCodeSharedSigningKeys       = "config.shared_signing_keys"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeInvalidStoreDriver      = "config.invalid_user_store_driver"
	configCodeIncompleteS3Config      = "config.incomplete_s3_config"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

// serverSettings bundles everything runServer needs beyond viper lookups.
type serverSettings struct {
	Tokens tokens.Config
	API    userapi.ServerConfig
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	settings, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, settings))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadServerConfig() (serverSettings, error) {
	accessSigningKey := viper.GetString("access_jwt_signing_key")
	if accessSigningKey == "" {
		return serverSettings{}, configError(configCodeMissingAccessKey, "access_jwt_signing_key must be provided")
	}

	refreshSigningKey := viper.GetString("refresh_jwt_signing_key")
	if refreshSigningKey == "" {
		return serverSettings{}, configError(configCodeMissingRefreshKey, "refresh_jwt_signing_key must be provided")
	}
	if accessSigningKey == refreshSigningKey {
		return serverSettings{}, configError(configCodeSharedSigningKeys, "access and refresh signing keys must differ")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return serverSettings{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= accessTTL {
		return serverSettings{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must exceed access_ttl")
	}

	jsonBodyLimit := int64(16 << 10)
	if configuredJSONLimit := viper.GetInt64("json_body_limit"); configuredJSONLimit > 0 {
		jsonBodyLimit = configuredJSONLimit
	}
	registerBodyLimit := int64(8 << 20)
	if configuredRegisterLimit := viper.GetInt64("register_body_limit"); configuredRegisterLimit > 0 {
		registerBodyLimit = configuredRegisterLimit
	}

	storeDriver := strings.ToLower(viper.GetString("user_store_driver"))
	if storeDriver != "" && storeDriver != "gorm" && storeDriver != "pgx" {
		return serverSettings{}, configError(configCodeInvalidStoreDriver, "user_store_driver must be gorm or pgx")
	}

	return serverSettings{
		Tokens: tokens.Config{
			AccessSigningKey:  []byte(accessSigningKey),
			RefreshSigningKey: []byte(refreshSigningKey),
			Issuer:            tokenIssuerName,
			AccessTTL:         accessTTL,
			RefreshTTL:        refreshTTL,
		},
		API: userapi.ServerConfig{
			AccessCookieName:  userapi.DefaultAccessCookieName,
			RefreshCookieName: userapi.DefaultRefreshCookieName,
			CookieDomain:      viper.GetString("cookie_domain"),
			SameSiteMode:      http.SameSiteStrictMode,
			JSONBodyLimit:     jsonBodyLimit,
			RegisterBodyLimit: registerBodyLimit,
		},
	}, nil
}

func buildUserStore(ctx context.Context, logger *zap.Logger) (userstore.Store, error) {
	databaseURL := viper.GetString("database_url")
	if databaseURL == "" {
		logger.Info("using in-memory user store")
		return userstore.NewMemoryStore(), nil
	}

	if strings.ToLower(viper.GetString("user_store_driver")) == "pgx" {
		pool, poolErr := userstorepg.BuildPool(ctx, databaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		if schemaErr := userstorepg.EnsureSchema(ctx, pool); schemaErr != nil {
			pool.Close()
			return nil, schemaErr
		}
		logger.Info("using pgx user store")
		return userstorepg.NewPostgresUserStore(pool), nil
	}

	store, storeErr := userstore.NewDatabaseStore(ctx, databaseURL)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using gorm user store", zap.String("driver", store.Driver()))
	return store, nil
}

func buildUploader(ctx context.Context, logger *zap.Logger) (media.Uploader, error) {
	region := viper.GetString("s3_region")
	bucket := viper.GetString("s3_bucket")
	if region == "" && bucket == "" {
		logger.Info("using in-memory media uploader")
		return media.NewMemoryUploader("memory://media"), nil
	}
	if region == "" || bucket == "" {
		return nil, configError(configCodeIncompleteS3Config, "s3_region and s3_bucket must both be provided")
	}
	uploader, uploaderErr := media.NewS3Uploader(ctx, media.S3Config{
		Region:        region,
		Bucket:        bucket,
		Endpoint:      viper.GetString("s3_endpoint"),
		AccessKeyID:   viper.GetString("s3_access_key_id"),
		SecretKey:     viper.GetString("s3_secret_key"),
		PublicBaseURL: viper.GetString("s3_public_base_url"),
	})
	if uploaderErr != nil {
		return nil, uploaderErr
	}
	logger.Info("using s3 media uploader", zap.String("bucket", bucket))
	return uploader, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	settings, ok := contextValue.(serverSettings)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	settings.API.AllowInsecureHTTP = viper.GetBool("dev_insecure_http")
	if enableCORS {
		settings.API.SameSiteMode = http.SameSiteNoneMode
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := userapi.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	userStore, storeErr := buildUserStore(commandContext, logger)
	if storeErr != nil {
		return storeErr
	}

	uploader, uploaderErr := buildUploader(commandContext, logger)
	if uploaderErr != nil {
		return uploaderErr
	}

	clock := tokens.NewSystemClock()
	issuer, issuerErr := tokens.NewIssuer(settings.Tokens, clock)
	if issuerErr != nil {
		return issuerErr
	}
	validator, validatorErr := tokens.NewValidator(settings.Tokens, clock)
	if validatorErr != nil {
		return validatorErr
	}

	controller := session.NewController(userStore, uploader, issuer, validator, logger, session.NewCounterMetrics())

	apiGroup := router.Group("/api/v1")
	userapi.MountUserRoutes(apiGroup, settings.API, controller, validator, logger)

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
