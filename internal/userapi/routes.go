// Package userapi exposes the session flows over HTTP: registration,
// login, logout, refresh-token rotation, password change, and profile
// management under /users.
package userapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tyemirov/vidtube/internal/apierror"
	"github.com/tyemirov/vidtube/internal/session"
	"github.com/tyemirov/vidtube/internal/tokens"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" form:"oldPassword"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

type updateProfileRequest struct {
	FullName string `json:"fullName" form:"fullName"`
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
}

// MountUserRoutes registers the /users endpoints on the router.
func MountUserRoutes(router gin.IRouter, configuration ServerConfig, controller *session.Controller, validator *tokens.Validator, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	users := router.Group("/users")
	jsonLimit := BodyLimit(configuration.JSONBodyLimit)

	users.POST("/register", BodyLimit(configuration.RegisterBodyLimit), handleRegister(configuration, controller, logger))
	users.POST("/login", jsonLimit, handleLogin(configuration, controller, logger))
	users.POST("/refresh-token", jsonLimit, handleRefresh(configuration, controller, logger))

	authenticated := users.Group("")
	authenticated.Use(RequireSession(configuration, validator, logger))
	authenticated.POST("/logout", handleLogout(configuration, controller, logger))
	authenticated.POST("/change-password", jsonLimit, handleChangePassword(controller, logger))
	authenticated.PATCH("/profile", jsonLimit, handleUpdateProfile(controller, logger))
	authenticated.GET("/me", handleCurrentUser(controller, logger))
}

func requireSecureTransport(contextGin *gin.Context, configuration ServerConfig, logger *zap.Logger) bool {
	if configuration.AllowInsecureHTTP || isHTTPS(contextGin.Request) {
		return true
	}
	respondError(contextGin, logger, apierror.BadRequest("https is required"))
	return false
}

func handleRegister(configuration ServerConfig, controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if !requireSecureTransport(contextGin, configuration, logger) {
			return
		}

		form, formErr := contextGin.MultipartForm()
		if formErr != nil {
			respondError(contextGin, logger, apierror.BadRequest("invalid multipart form"))
			return
		}

		input := session.RegisterInput{
			Username: contextGin.PostForm("username"),
			Email:    contextGin.PostForm("email"),
			FullName: contextGin.PostForm("fullName"),
			Password: contextGin.PostForm("password"),
		}

		if avatarHeaders := form.File["avatar"]; len(avatarHeaders) > 0 {
			avatarFile, openErr := avatarHeaders[0].Open()
			if openErr != nil {
				respondError(contextGin, logger, apierror.BadRequest("avatar file is unreadable"))
				return
			}
			defer func() { _ = avatarFile.Close() }()
			input.Avatar = &session.FileInput{
				FileName:    avatarHeaders[0].Filename,
				ContentType: avatarHeaders[0].Header.Get("Content-Type"),
				Content:     avatarFile,
			}
		}
		if coverHeaders := form.File["coverImage"]; len(coverHeaders) > 0 {
			coverFile, openErr := coverHeaders[0].Open()
			if openErr != nil {
				respondError(contextGin, logger, apierror.BadRequest("cover image file is unreadable"))
				return
			}
			defer func() { _ = coverFile.Close() }()
			input.CoverImage = &session.FileInput{
				FileName:    coverHeaders[0].Filename,
				ContentType: coverHeaders[0].Header.Get("Content-Type"),
				Content:     coverFile,
			}
		}

		created, registerErr := controller.Register(contextGin, input)
		if registerErr != nil {
			respondError(contextGin, logger, registerErr)
			return
		}
		respondSuccess(contextGin, http.StatusCreated, created, "user registered successfully")
	}
}

func handleLogin(configuration ServerConfig, controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if !requireSecureTransport(contextGin, configuration, logger) {
			return
		}

		var inbound loginRequest
		if bindErr := contextGin.ShouldBind(&inbound); bindErr != nil {
			respondError(contextGin, logger, apierror.BadRequest("invalid request body"))
			return
		}

		result, loginErr := controller.Login(contextGin, session.LoginInput{
			Username: inbound.Username,
			Email:    inbound.Email,
			Password: inbound.Password,
		})
		if loginErr != nil {
			respondError(contextGin, logger, loginErr)
			return
		}

		writeAuthCookies(contextGin, configuration, result.Tokens)
		respondSuccess(contextGin, http.StatusOK, gin.H{
			"user":         result.User,
			"accessToken":  result.Tokens.AccessToken,
			"refreshToken": result.Tokens.RefreshToken,
		}, "login successful")
	}
}

func handleLogout(configuration ServerConfig, controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		userID, authenticated := authenticatedUserID(contextGin)
		if !authenticated {
			respondUnauthorized(contextGin, logger, "authentication required")
			return
		}

		if logoutErr := controller.Logout(contextGin, userID); logoutErr != nil {
			respondError(contextGin, logger, logoutErr)
			return
		}
		clearAuthCookies(contextGin, configuration)
		respondSuccess(contextGin, http.StatusOK, gin.H{}, "logged out")
	}
}

func handleRefresh(configuration ServerConfig, controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		presentedToken := ""
		if refreshCookie, cookieErr := contextGin.Request.Cookie(configuration.RefreshCookieName); cookieErr == nil && refreshCookie != nil {
			presentedToken = refreshCookie.Value
		}
		if presentedToken == "" {
			var inbound refreshRequest
			if bindErr := contextGin.ShouldBind(&inbound); bindErr == nil {
				presentedToken = inbound.RefreshToken
			}
		}

		pair, refreshErr := controller.Refresh(contextGin, presentedToken)
		if refreshErr != nil {
			respondError(contextGin, logger, refreshErr)
			return
		}

		writeAuthCookies(contextGin, configuration, pair)
		respondSuccess(contextGin, http.StatusOK, gin.H{
			"accessToken":  pair.AccessToken,
			"refreshToken": pair.RefreshToken,
		}, "access token refreshed")
	}
}

func handleChangePassword(controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		userID, authenticated := authenticatedUserID(contextGin)
		if !authenticated {
			respondUnauthorized(contextGin, logger, "authentication required")
			return
		}

		var inbound changePasswordRequest
		if bindErr := contextGin.ShouldBind(&inbound); bindErr != nil {
			respondError(contextGin, logger, apierror.BadRequest("invalid request body"))
			return
		}

		if changeErr := controller.ChangePassword(contextGin, userID, inbound.OldPassword, inbound.NewPassword); changeErr != nil {
			respondError(contextGin, logger, changeErr)
			return
		}
		respondSuccess(contextGin, http.StatusOK, gin.H{}, "password changed")
	}
}

func handleUpdateProfile(controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		userID, authenticated := authenticatedUserID(contextGin)
		if !authenticated {
			respondUnauthorized(contextGin, logger, "authentication required")
			return
		}

		var inbound updateProfileRequest
		if bindErr := contextGin.ShouldBind(&inbound); bindErr != nil {
			respondError(contextGin, logger, apierror.BadRequest("invalid request body"))
			return
		}

		updated, updateErr := controller.UpdateProfile(contextGin, userID, session.ProfileInput{
			FullName: inbound.FullName,
			Email:    inbound.Email,
			Username: inbound.Username,
		})
		if updateErr != nil {
			respondError(contextGin, logger, updateErr)
			return
		}
		respondSuccess(contextGin, http.StatusOK, updated, "profile updated")
	}
}

func handleCurrentUser(controller *session.Controller, logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		userID, authenticated := authenticatedUserID(contextGin)
		if !authenticated {
			respondUnauthorized(contextGin, logger, "authentication required")
			return
		}

		current, currentErr := controller.CurrentUser(contextGin, userID)
		if currentErr != nil {
			respondError(contextGin, logger, currentErr)
			return
		}
		respondSuccess(contextGin, http.StatusOK, current, "current user")
	}
}
