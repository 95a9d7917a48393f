package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

type headersKey struct{}

// WithRequestHeaders stores the inbound HTTP headers of the current request.
// It matches the shape of mcp-go's HTTPContextFunc so it can be installed
// directly on the streamable HTTP transport.
func WithRequestHeaders(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, headersKey{}, r.Header.Clone())
}

// HeadersFromContext returns the headers captured for the current request
func HeadersFromContext(ctx context.Context) (http.Header, bool) {
	headers, ok := ctx.Value(headersKey{}).(http.Header)
	return headers, ok
}

// TokenSource resolves the delegated user token for the current request
type TokenSource interface {
	UserToken(ctx context.Context) (token string, ok bool, err error)
}

// TokenProvider reads the delegated token forwarded by the Databricks Apps
// proxy. The hosted flag is decided once at startup.
type TokenProvider struct {
	hosted bool
	header string
}

// NewTokenProvider creates a token provider from the process configuration
func NewTokenProvider(cfg *config.Config) *TokenProvider {
	header := cfg.TokenHeader
	if header == "" {
		header = config.DefaultTokenHeader
	}
	return &TokenProvider{
		hosted: cfg.Hosted,
		header: header,
	}
}

// UserToken returns the delegated token. Outside the hosted environment it
// returns ok=false and no error. Inside it, a missing header is an
// authentication error.
func (p *TokenProvider) UserToken(ctx context.Context) (string, bool, error) {
	if !p.hosted {
		return "", false, nil
	}

	headers, _ := HeadersFromContext(ctx)
	token := headers.Get(p.header)
	if token == "" {
		return "", false, clierrors.AuthErrorWithContext(
			fmt.Errorf("authentication token not found in request headers (%s)", p.header),
			"Enable user authorization (OBO) for the app so the proxy forwards the caller's token.",
		)
	}

	return token, true, nil
}

// StaticToken is a TokenSource that always yields the same token. The CLI
// harnesses use it with an explicit --token flag.
type StaticToken string

// UserToken implements TokenSource
func (t StaticToken) UserToken(context.Context) (string, bool, error) {
	if t == "" {
		return "", false, nil
	}
	return string(t), true, nil
}
