package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{"JWT_SECRET": "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, []string{"*"}, cfg.Server.TrustedOrigins)
	assert.Equal(t, StoreFile, cfg.Store.Kind)
	assert.Equal(t, "users.json", cfg.Store.UsersFile)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "http://localhost:5000/auth/google/callback", cfg.OAuth.GoogleRedirectURI)
	assert.Equal(t, "/dashboard", cfg.OAuth.SuccessURL)
	assert.Equal(t, "/login", cfg.OAuth.ErrorURL)
	assert.Equal(t, LinkPolicyLink, cfg.OAuth.LinkPolicy)
	assert.False(t, cfg.OAuth.VerifyState)
	assert.False(t, cfg.OAuth.Enabled())
	assert.Zero(t, cfg.RateLimit.RPS)
	assert.Equal(t, 3*time.Minute, cfg.RateLimit.IdleExpiry)
	assert.False(t, cfg.RateLimit.TrustProxyHeaders)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"JWT_SECRET":                   "s3cret",
		"PASSGATE_ENV":                 "prod",
		"PASSGATE_PORT":                "8080",
		"PASSGATE_TRUSTED_ORIGINS":     "http://a.test,http://b.test",
		"GOOGLE_CLIENT_ID":             "cid",
		"GOOGLE_CLIENT_SECRET":         "csecret",
		"GOOGLE_REDIRECT_URI":          "https://auth.test/cb",
		"PASSGATE_OAUTH_LINK_POLICY":   "reject",
		"PASSGATE_OAUTH_TIMEOUT":       "3s",
		"PASSGATE_RATE_LIMIT_RPS":      "2.5",
		"PASSGATE_RATE_LIMIT_IDLE":     "1m",
		"PASSGATE_TRUST_PROXY_HEADERS": "true",
	})
	require.NoError(t, err)

	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.TrustedOrigins)
	assert.True(t, cfg.OAuth.Enabled())
	assert.Equal(t, "https://auth.test/cb", cfg.OAuth.GoogleRedirectURI)
	assert.Equal(t, LinkPolicyReject, cfg.OAuth.LinkPolicy)
	assert.Equal(t, 3*time.Second, cfg.OAuth.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Equal(t, time.Minute, cfg.RateLimit.IdleExpiry)
	assert.True(t, cfg.RateLimit.TrustProxyHeaders)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr error
	}{
		{
			name:    "missing secret",
			environ: map[string]string{},
			wantErr: ErrMissingJWTSecret,
		},
		{
			name:    "unknown store",
			environ: map[string]string{"JWT_SECRET": "x", "PASSGATE_STORE": "redis"},
		},
		{
			name:    "postgres without dsn",
			environ: map[string]string{"JWT_SECRET": "x", "PASSGATE_STORE": "postgres"},
		},
		{
			name:    "datastore without project",
			environ: map[string]string{"JWT_SECRET": "x", "PASSGATE_STORE": "datastore"},
		},
		{
			name:    "unknown link policy",
			environ: map[string]string{"JWT_SECRET": "x", "PASSGATE_OAUTH_LINK_POLICY": "merge"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.environ)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
