// Package grpc carries passgate session tokens over gRPC metadata and
// verifies them in server interceptors.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for authentication context.
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <session token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyEmail is set on outgoing calls from trusted internal services
	DefaultMetadataKeyEmail = "x-user-email"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization"
	MetadataKeyAuthorization string

	// MetadataKeyEmail defaults to "x-user-email"
	MetadataKeyEmail string

	// TrustEmailMetadata when true accepts an email in MetadataKeyEmail without
	// a token. Only for calls between services behind the same gateway.
	TrustEmailMetadata bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyEmail:         DefaultMetadataKeyEmail,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyEmail == "" {
		c.MetadataKeyEmail = DefaultMetadataKeyEmail
	}
}

type emailContextKey struct{}

// ContextWithEmail records the authenticated email for downstream handlers
func ContextWithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailContextKey{}, email)
}

// EmailFromContext returns the email set by the interceptors, or ""
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailContextKey{}).(string)
	return email
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return EmailFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches a session token to outgoing gRPC metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// EmailToOutgoingContext forwards an already verified email to a trusted service.
func EmailToOutgoingContext(ctx context.Context, email string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyEmail, email)
}

// bearerToken extracts the token from the first authorization value
func bearerToken(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	v := strings.TrimSpace(values[0])
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}
