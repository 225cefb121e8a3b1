// Package api holds the request parsing helpers shared by the handlers.
package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const DateLayout = "2006-01-02"

// ParamID parses a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Identifiant invalide.")
	}
	return uint(v), nil
}

// QueryUint returns nil when the parameter is absent.
func QueryUint(c *fiber.Ctx, name string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Paramètre "+name+" invalide.")
	}
	u := uint(v)
	return &u, nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "Format de date attendu : AAAA-MM-JJ.")
	}
	return t, nil
}

// OptionalDate parses a nullable date field. An empty string clears it.
func OptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := ParseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// QueryRange reads ?from=&to= as an inclusive day range. Missing bounds are
// returned as zero times.
func QueryRange(c *fiber.Ctx) (from, to time.Time, err error) {
	if raw := c.Query("from"); raw != "" {
		if from, err = ParseDate(raw); err != nil {
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = ParseDate(raw); err != nil {
			return
		}
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		err = fiber.NewError(fiber.StatusBadRequest, "La date de fin précède la date de début.")
	}
	return
}
