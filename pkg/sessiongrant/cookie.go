package sessiongrant

import (
	"net/http"

	"github.com/licensemart/stepup-auth/pkg/config"
)

// GRANT_COOKIE_NAME is the cookie the grant travels in when cookie delivery
// is used instead of the response body.
const GRANT_COOKIE_NAME = "stepup_grant"

// GRANT_HEADER_NAME is the header non-browser clients present the grant in.
const GRANT_HEADER_NAME = "X-Stepup-Grant"

// GrantFromCookie extracts the grant token from the request cookie.
func GrantFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(GRANT_COOKIE_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// GrantFromHeader extracts the grant token from the grant header.
func GrantFromHeader(r *http.Request) string {
	return r.Header.Get(GRANT_HEADER_NAME)
}

// GrantCookieService writes and clears the grant cookie
type GrantCookieService struct {
	path     string
	httpOnly bool
	secure   bool
	sameSite http.SameSite
}

// NewGrantCookieService creates a new cookie service
func NewGrantCookieService(httpOnly, secure bool, sameSite http.SameSite) *GrantCookieService {
	return &GrantCookieService{
		path:     "/",
		httpOnly: httpOnly,
		secure:   secure,
		sameSite: sameSite,
	}
}

// NewGrantCookieServiceFromConfig creates a cookie service from grant config
func NewGrantCookieServiceFromConfig(cfg config.GrantConfig) *GrantCookieService {
	return NewGrantCookieService(cfg.CookieHttpOnly, cfg.CookieSecure, cfg.CookieSameSite())
}

// SetGrantCookie writes the grant token as a cookie expiring with the grant
func (c *GrantCookieService) SetGrantCookie(w http.ResponseWriter, grant *Grant) error {
	cookie := &http.Cookie{
		Name:     GRANT_COOKIE_NAME,
		Path:     c.path,
		Value:    grant.Token,
		Expires:  grant.ExpiresAt,
		HttpOnly: c.httpOnly,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}

	http.SetCookie(w, cookie)
	return nil
}

// ClearGrantCookie clears the grant cookie
func (c *GrantCookieService) ClearGrantCookie(w http.ResponseWriter) error {
	cookie := &http.Cookie{
		Name:     GRANT_COOKIE_NAME,
		Path:     c.path,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: c.httpOnly,
		Secure:   c.secure,
	}

	http.SetCookie(w, cookie)
	return nil
}

// GetGrantFromRequest reads the grant token from the request, trying the
// cookie first and then the header.
func (c *GrantCookieService) GetGrantFromRequest(r *http.Request) (string, error) {
	if token := GrantFromCookie(r); token != "" {
		return token, nil
	}
	if token := GrantFromHeader(r); token != "" {
		return token, nil
	}
	return "", http.ErrNoCookie
}
