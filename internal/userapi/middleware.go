package userapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/vidtube/internal/tokens"
)

// AuthUserIDKey is the gin context key under which RequireSession stores
// the authenticated user's ID.
const AuthUserIDKey = "auth_user_id"

// RequireSession validates the access token from the cookie or the
// Authorization header and injects the resolved user ID.
func RequireSession(configuration ServerConfig, validator *tokens.Validator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		tokenString := ""
		if accessCookie, cookieErr := contextGin.Request.Cookie(configuration.AccessCookieName); cookieErr == nil && accessCookie != nil {
			tokenString = accessCookie.Value
		}
		if tokenString == "" {
			authorization := contextGin.GetHeader("Authorization")
			if strings.HasPrefix(authorization, "Bearer ") {
				tokenString = strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
			}
		}
		if strings.TrimSpace(tokenString) == "" {
			respondUnauthorized(contextGin, logger, "authentication required")
			return
		}

		userID, validateErr := validator.ValidateAccess(tokenString)
		if validateErr != nil {
			respondUnauthorized(contextGin, logger, "invalid or expired access token")
			return
		}
		contextGin.Set(AuthUserIDKey, userID)
		contextGin.Next()
	}
}

// authenticatedUserID reads the user ID injected by RequireSession.
func authenticatedUserID(contextGin *gin.Context) (string, bool) {
	value, found := contextGin.Get(AuthUserIDKey)
	if !found {
		return "", false
	}
	userID, ok := value.(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// BodyLimit caps the request body at maxBytes; oversized reads fail at
// bind time.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if maxBytes > 0 && contextGin.Request.Body != nil {
			contextGin.Request.Body = http.MaxBytesReader(contextGin.Writer, contextGin.Request.Body, maxBytes)
		}
		contextGin.Next()
	}
}
