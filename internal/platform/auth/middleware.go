package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Claims is the token payload issued by the identity provider. The clinic
// claim feeds the tenant middleware; roles feed the capability checks.
type Claims struct {
	Roles    []string `json:"roles"`
	ClinicID string   `json:"clinic_id"`
	jwt.RegisteredClaims
}

// JWTMiddleware validates a bearer token signed with the shared secret and
// stores operator identity in the request context.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			ctx := WithUser(c.Request().Context(), userID, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))
			if claims.ClinicID != "" {
				c.Set("jwt_clinic_id", claims.ClinicID)
			}
			return next(c)
		}
	}
}

// DevAuthMiddleware grants every request a fixed admin identity. Development
// only; config.Validate refuses to start production without AUTH_SECRET.
func DevAuthMiddleware() echo.MiddlewareFunc {
	devUser := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := WithUser(c.Request().Context(), devUser, []string{"admin"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
