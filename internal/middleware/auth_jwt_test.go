package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shop/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	assert.NoError(t, err)
	return s
}

func doRequest(cfg config.Config, authz string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	_ = AuthJWT(cfg)(handler)(c)
	return rec, c
}

func TestAuthJWT_ValidToken(t *testing.T) {
	cfg := config.Config{JWTSecret: "secret"}
	token := signToken(t, "secret", jwt.MapClaims{
		"sub":  float64(5),
		"role": "USER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	rec, c := doRequest(cfg, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(5), c.Get(CtxUserIDKey))
	assert.Equal(t, "USER", c.Get(CtxUserRoleKey))
}

func TestAuthJWT_MissingHeader(t *testing.T) {
	cfg := config.Config{JWTSecret: "secret"}

	rec, _ := doRequest(cfg, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_WrongSecret(t *testing.T) {
	cfg := config.Config{JWTSecret: "secret"}
	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub":  float64(5),
		"role": "USER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	rec, _ := doRequest(cfg, "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthJWT_ExpiredToken(t *testing.T) {
	cfg := config.Config{JWTSecret: "secret"}
	token := signToken(t, "secret", jwt.MapClaims{
		"sub":  float64(5),
		"role": "USER",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})

	rec, _ := doRequest(cfg, "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoleGuard(t *testing.T) {
	e := echo.New()
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	// ADMINは通る
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(CtxUserRoleKey, "ADMIN")
	_ = AdminRoleGuard()(handler)(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	// USERは403
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.Set(CtxUserRoleKey, "USER")
	_ = AdminRoleGuard()(handler)(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// role未設定は401
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	_ = AdminRoleGuard()(handler)(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
