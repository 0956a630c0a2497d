package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestHasCapability(t *testing.T) {
	cases := []struct {
		roles []string
		cap   string
		want  bool
	}{
		{[]string{"admin"}, "billing.write", true},
		{[]string{"receptionist"}, "billing.write", true},
		{[]string{"receptionist"}, "ortho.write", false},
		{[]string{"professional"}, "treatments.write", true},
		{[]string{"crc"}, "crm.write", true},
		{[]string{"crc"}, "register.write", false},
		{nil, "patients.read", false},
	}
	for _, tc := range cases {
		if got := HasCapability(tc.roles, tc.cap); got != tc.want {
			t.Errorf("HasCapability(%v, %s) = %v, want %v", tc.roles, tc.cap, got, tc.want)
		}
	}
}

func requestWithRoles(roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	ctx := WithUser(req.Context(), uuid.New(), roles)
	c.SetRequest(req.WithContext(ctx))
	return c, rec
}

func TestRequireRole_Allows(t *testing.T) {
	c, _ := requestWithRoles("professional")
	h := RequireRole("professional")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Errorf("expected pass, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := requestWithRoles("admin")
	h := RequireRole("receptionist")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Errorf("admin should pass any role check, got %v", err)
	}
}

func TestRequireRole_Rejects(t *testing.T) {
	c, _ := requestWithRoles("receptionist")
	h := RequireRole("professional")(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := JWTMiddleware("secret")(func(c echo.Context) error { return nil })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
