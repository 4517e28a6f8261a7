package api

import (
	"net/http"
	"time"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// Credentials travel as non-scriptable cookies so browser code never holds
// the raw tokens.
func setTokenCookie(w http.ResponseWriter, r *http.Request, name, value string, validity time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(validity.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearTokenCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
