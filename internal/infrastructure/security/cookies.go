package security

import (
	"net/http"
	"time"
)

const RefreshCookieName = "refresh_token"

// hostPrefix pins the cookie to this host and requires Secure + Path=/.
const hostPrefix = "__Host-"

func cookieName(secure bool) string {
	if secure {
		return hostPrefix + RefreshCookieName
	}
	return RefreshCookieName
}

func SetRefreshToken(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(secure),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func ClearRefreshToken(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(secure),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func ReadRefreshToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(hostPrefix + RefreshCookieName); err == nil {
		return c.Value, nil
	}
	// plain name is only used by local non-https setups
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
