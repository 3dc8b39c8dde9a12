package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DB_DRIVER", "TOKEN_TTL", "ENABLE_REGISTRATION", "CORS_ORIGINS", "BEACON_TIMEOUT"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
	assert.True(t, c.EnableRegistration)
	assert.Equal(t, 5*time.Second, c.BeaconTimeout)
	assert.Len(t, c.CORSOrigins, 2)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("ENABLE_REGISTRATION", "no")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	c := FromEnv()
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, 90*time.Minute, c.TokenTTL)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.False(t, c.EnableRegistration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
}
