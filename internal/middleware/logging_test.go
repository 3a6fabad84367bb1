package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"parley/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextMiddleware_PropagatesRequestAndUser(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(TracingMiddleware())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(UserIDLocal, uint(9))
		return c.Next()
	})
	app.Use(ContextMiddleware())

	var requestID string
	var userID uint
	app.Get("/ping", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		requestID, _ = ctx.Value(observability.RequestIDKey).(string)
		userID, _ = ctx.Value(observability.UserIDKey).(uint)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", requestID)
	assert.Equal(t, uint(9), userID)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))
}
