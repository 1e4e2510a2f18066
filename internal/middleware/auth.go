package middleware

import (
	"net/http"
	"strings"

	"storefront-checkout/internal/dto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// AuthMiddleware validates the session token issued by the authentication
// provider and exposes the opaque {id, email} identity to handlers.
func AuthMiddleware(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
			}

			sub, _ := claims["sub"].(string)
			email, _ := claims["email"].(string)
			if sub == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
			}

			c.Set(userContextKey, &dto.User{ID: sub, Email: email})
			return next(c)
		}
	}
}

// UserFromContext returns the authenticated user, or nil on routes that do
// not carry AuthMiddleware.
func UserFromContext(c echo.Context) *dto.User {
	user, _ := c.Get(userContextKey).(*dto.User)
	return user
}
