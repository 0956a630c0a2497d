package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Capabilities is a pure configuration lookup from role to capability set.
// Role differences drive what an operator may call, nothing else; there is no
// role hierarchy beyond admin implying everything.
var capabilities = map[string][]string{
	"admin":        {"*"},
	"master":       {"*"},
	"professional": {"patients.read", "budgets.write", "treatments.write", "notes.write", "ortho.write"},
	"crc":          {"patients.read", "budgets.write", "crm.write", "billing.read"},
	"receptionist": {"patients.read", "patients.write", "billing.write", "register.write"},
}

// CapabilitiesFor returns the capability set configured for role.
func CapabilitiesFor(role string) []string {
	return capabilities[role]
}

// HasCapability reports whether any of roles grants cap.
func HasCapability(roles []string, cap string) bool {
	for _, role := range roles {
		for _, granted := range capabilities[role] {
			if granted == "*" || granted == cap {
				return true
			}
		}
	}
	return false
}

// RequireRole checks that the operator holds at least one of the given roles.
// Admin passes every role check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireCapability checks the role→capability table for the operation.
func RequireCapability(cap string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasCapability(RolesFromContext(c.Request().Context()), cap) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required capability: %s", cap))
		}
	}
}
