package userapi

import "net/http"

// ServerConfig configures cookies and transport behavior for the user API.
type ServerConfig struct {
	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
	// JSONBodyLimit caps JSON/form request bodies; RegisterBodyLimit caps
	// the multipart register request, which carries image files.
	JSONBodyLimit     int64
	RegisterBodyLimit int64
}

// Default cookie names match the wire contract.
const (
	DefaultAccessCookieName  = "accessToken"
	DefaultRefreshCookieName = "refreshToken"
)
