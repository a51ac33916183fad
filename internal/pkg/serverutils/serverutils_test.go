package serverutils

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/escalation"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
	"emergency-dispatch-be/pkg/emergency/matcher"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ValidationError{Fields: map[string]string{"role": "required"}}, fiber.StatusBadRequest},
		{"bad input", fmt.Errorf("status: %w", lifecycle.ErrInvalidInput), fiber.StatusBadRequest},
		{"bad responder", directory.ErrInvalidResponder, fiber.StatusBadRequest},
		{"session missing", escalation.ErrSessionNotFound, fiber.StatusNotFound},
		{"step missing", lifecycle.ErrStepNotFound, fiber.StatusNotFound},
		{"responder missing", fmt.Errorf("reserve: %w", directory.ErrResponderNotFound), fiber.StatusNotFound},
		{"transition", lifecycle.ErrInvalidTransition, fiber.StatusConflict},
		{"closed", lifecycle.ErrSessionClosed, fiber.StatusConflict},
		{"unavailable", directory.ErrResponderUnavailable, fiber.StatusConflict},
		{"no location", escalation.ErrNoLocation, fiber.StatusConflict},
		{"timeout", matcher.ErrDispatchTimeout, fiber.StatusGatewayTimeout},
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("db password leaked") })
	app.Get("/gone", func(*fiber.Ctx) error { return escalation.ErrSessionNotFound })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "password")

	resp, err = app.Test(httptest.NewRequest("GET", "/gone", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "session not found")
}

func TestErrorHandlerRendersRejectedState(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Post("/connect", func(*fiber.Ctx) error {
		return WithState(fmt.Errorf("%w: connect from active", lifecycle.ErrInvalidTransition), fiber.Map{"status": "active"})
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/connect", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"code":409,"message":"invalid session transition: connect from active","data":{"status":"active"}}`, string(body))
}

func TestParseDispatcherToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseDispatcherToken(sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "disp-1", "exp": exp}), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "disp-1", id)

	id, err = ParseDispatcherToken(sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "disp-2", "exp": exp}), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "disp-2", id)

	_, err = ParseDispatcherToken(sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "x", "exp": exp}), testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseDispatcherToken(sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Minute).Unix()}), testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseDispatcherToken(sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": exp}), testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseDispatcherToken(sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "x"}), testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJwtMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", JwtMiddleware(testSecret), func(ctx *fiber.Ctx) error {
		return ctx.SendString(ctx.Locals(LocalDispatcherId).(string))
	})
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "disp-9"})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "disp-9", string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/me?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

type registerBody struct {
	Role string `json:"role" validate:"required,oneof=medical police"`
	Id   string `json:"id" validate:"required"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(registerBody{Role: "medical", Id: "A"}))

	err := ValidateRequest(registerBody{Role: "pilot"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Role")
	assert.Contains(t, verr.Fields, "Id")
}
