package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/fekuna/omnipos-fulfillment-service/internal/apperr"
	"github.com/fekuna/omnipos-fulfillment-service/internal/httpx"
	"github.com/fekuna/omnipos-fulfillment-service/internal/platform/logger"
	"github.com/google/uuid"
)

type CSRFConfig struct {
	CookieName string
	HeaderName string
	Secure     bool
}

// CSRF enforces the double-submit pattern: unsafe methods must echo the cookie token in a header.
func CSRF(cfg CSRFConfig, log logger.ZapLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				httpx.RespondError(w, r, log, apperr.Forbidden("missing CSRF cookie"))
				return
			}
			header := r.Header.Get(cfg.HeaderName)
			if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
				httpx.RespondError(w, r, log, apperr.Forbidden("invalid CSRF token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFTokenHandler issues a fresh token as a cookie and echoes it in the body.
func CSRFTokenHandler(cfg CSRFConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    token,
			Path:     "/",
			Secure:   cfg.Secure,
			SameSite: http.SameSiteStrictMode,
		})
		httpx.Respond(w, http.StatusOK, map[string]string{"csrfToken": token})
	}
}
