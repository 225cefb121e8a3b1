package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	cfg := &Config{JWTSecret: "0123456789abcdef0123456789abcdef", JWTTTL: time.Hour}
	assert.NoError(t, cfg.Validate())

	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.JWTTTL = 0
	assert.Error(t, cfg.Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ATELIER_TEST_INT", "42")
	t.Setenv("ATELIER_TEST_BAD_INT", "x")
	t.Setenv("ATELIER_TEST_DUR", "90s")

	assert.Equal(t, 42, getEnvAsInt("ATELIER_TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("ATELIER_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("ATELIER_TEST_DUR", time.Second))
	assert.Equal(t, "fallback", getEnv("ATELIER_TEST_MISSING", "fallback"))
}
