package userapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tyemirov/vidtube/internal/session"
)

func writeAuthCookies(contextGin *gin.Context, configuration ServerConfig, pair session.TokenPair) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.AccessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  pair.AccessExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.RefreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  pair.RefreshExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearAuthCookies(contextGin *gin.Context, configuration ServerConfig) {
	for _, name := range []string{configuration.AccessCookieName, configuration.RefreshCookieName} {
		http.SetCookie(contextGin.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   configuration.CookieDomain,
			MaxAge:   -1,
			Secure:   true,
			HttpOnly: true,
			SameSite: configuration.SameSiteMode,
		})
	}
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
