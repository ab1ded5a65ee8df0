package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Env:               "development",
		Port:              "8080",
		DBSSLMode:         "disable",
		DBPassword:        "secure-password",
		AuthMode:          AuthModeJWT,
		SupabaseJWTSecret: "secure-secret-at-least-32-chars-long",
		MaxBranchDepth:    10,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateAuthMode(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"jwt with secret", func(c *Config) {}, false},
		{"jwt without secret", func(c *Config) { c.SupabaseJWTSecret = "" }, true},
		{"supabase without credentials", func(c *Config) { c.AuthMode = AuthModeSupabase }, true},
		{"supabase with credentials", func(c *Config) {
			c.AuthMode = AuthModeSupabase
			c.SupabaseURL = "https://example.supabase.co"
			c.SupabaseServiceRoleKey = "service-role"
		}, false},
		{"unknown mode", func(c *Config) { c.AuthMode = "ldap" }, true},
		{"short secret in production", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.SupabaseJWTSecret = "short"
		}, true},
		{"zero branch depth", func(c *Config) { c.MaxBranchDepth = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("MAX_BRANCH_DEPTH", "4")

	c, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, 4, c.MaxBranchDepth)
	assert.Equal(t, AuthModeJWT, c.AuthMode)
	assert.Equal(t, 5*time.Second, c.RequestTimeout())
}

func TestConfig_Helpers(t *testing.T) {
	c := &Config{MediaMaxUploadMB: 2, RequestTimeoutSeconds: 3, Env: " Prod "}
	assert.Equal(t, int64(2*1024*1024), c.MediaMaxUploadBytes())
	assert.Equal(t, 3*time.Second, c.RequestTimeout())
	assert.True(t, c.IsProduction())

	c = &Config{}
	assert.Equal(t, int64(25*1024*1024), c.MediaMaxUploadBytes())
	assert.False(t, c.IsProduction())
}
