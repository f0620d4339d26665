package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const tokenCookieName = "sg_token"

// authMiddleware accepts the token as a query param once, swaps it for a
// cookie, and redirects to the clean URL.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()

		if queryToken := c.QueryParam("token"); queryToken != "" {
			if !s.validToken(queryToken) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			c.SetCookie(&http.Cookie{
				Name:     tokenCookieName,
				Value:    s.token,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(24 * time.Hour / time.Second),
				SameSite: http.SameSiteLaxMode,
			})

			newURL := *r.URL
			q := newURL.Query()
			q.Del("token")
			newURL.RawQuery = q.Encode()
			return c.Redirect(http.StatusFound, newURL.String())
		}

		cookie, err := c.Cookie(tokenCookieName)
		if err != nil || !s.validToken(cookie.Value) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}

		return next(c)
	}
}

func (s *Server) validToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}
