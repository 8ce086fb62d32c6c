package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newCorrelationApp(capture *string) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/ping", func(c *fiber.Ctx) error {
		*capture = GetCorrelationID(c)
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestCorrelationIDPropagatesIncomingHeader(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "corr-42", seen)
	require.Equal(t, "corr-42", resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDFallsBackToRequestIDHeader(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-7")

	_, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-7", seen)
}

func TestCorrelationIDGeneratesWhenAbsent(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, resp.Header.Get("X-Correlation-ID"))
}
