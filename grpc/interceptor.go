package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenVerifier checks a session token and returns its email.
// *passgate.SessionIssuer satisfies it.
type TokenVerifier interface {
	Verify(token string) (email string, err error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Verifier validates bearer tokens. Without one only trusted email
	// metadata can authenticate.
	Verifier TokenVerifier

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but EmailFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of full method names like "/package.Service/Method"
	// that don't require auth. Only used when RequireAuth is true.
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verifier TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(verifier TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(verifier TokenVerifier) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	config.RequireAuth = false
	return config
}

func (config *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies session tokens.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies session tokens.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

// authedStream overrides Context so handlers see the authenticated email
type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func authenticate(ctx context.Context, config *InterceptorConfig, method string) (context.Context, error) {
	email := extractEmail(ctx, config)
	if email != "" {
		return ContextWithEmail(ctx, email), nil
	}
	if config.RequireAuth && !config.PublicMethods[method] {
		return ctx, status.Error(codes.Unauthenticated, "authentication required")
	}
	return ctx, nil
}

// extractEmail verifies the bearer token, falling back to trusted email metadata.
func extractEmail(ctx context.Context, config *InterceptorConfig) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if token := bearerToken(md, config.MetadataKeyAuthorization); token != "" && config.Verifier != nil {
		email, err := config.Verifier.Verify(token)
		if err == nil {
			return email
		}
		slog.Debug("rejected grpc session token", "err", err)
	}

	if config.TrustEmailMetadata {
		if values := md.Get(config.MetadataKeyEmail); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
