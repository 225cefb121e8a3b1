package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("2026-02-28T10:00:00Z")
	assert.NoError(t, err)

	_, err = ParseDate("28/02/2026")
	assert.Error(t, err)
}

func TestOptionalDate(t *testing.T) {
	empty := ""
	d, err := OptionalDate(&empty)
	assert.NoError(t, err)
	assert.Nil(t, d)

	raw := "2026-01-01"
	d, err = OptionalDate(&raw)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", d.Format(DateLayout))
}

func TestParamsThroughFiber(t *testing.T) {
	app := fiber.New()
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, err := ParamID(c, "id")
		if err != nil {
			return err
		}
		from, to, err := QueryRange(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": id, "from": from.Format(DateLayout), "to": to.Format(time.RFC3339Nano)})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/items/7?from=2026-01-01&to=2026-01-31", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/items/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/items/3?from=2026-02-01&to=2026-01-01", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
