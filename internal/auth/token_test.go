package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

func requestContext(headers map[string]string) context.Context {
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return WithRequestHeaders(context.Background(), r)
}

func TestUserToken(t *testing.T) {
	tests := []struct {
		name      string
		hosted    bool
		headers   map[string]string
		wantToken string
		wantOK    bool
		wantErr   bool
	}{
		{
			name:   "local ignores headers",
			hosted: false,
			headers: map[string]string{
				config.DefaultTokenHeader: "user-token",
			},
		},
		{
			name:   "hosted with forwarded token",
			hosted: true,
			headers: map[string]string{
				"X-Forwarded-Access-Token": "user-token",
			},
			wantToken: "user-token",
			wantOK:    true,
		},
		{
			name:    "hosted without header",
			hosted:  true,
			headers: map[string]string{"Authorization": "Bearer other"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewTokenProvider(&config.Config{Hosted: tt.hosted})

			token, ok, err := provider.UserToken(requestContext(tt.headers))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, clierrors.IsType(err, clierrors.ErrorTypeAuth))
				assert.Contains(t, err.Error(), config.DefaultTokenHeader)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestUserTokenWithoutCapturedHeaders(t *testing.T) {
	provider := NewTokenProvider(&config.Config{Hosted: true})

	_, ok, err := provider.UserToken(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestStaticToken(t *testing.T) {
	token, ok, err := StaticToken("abc").UserToken(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok, err = StaticToken("").UserToken(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInspect(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "jane@example.com",
		Issuer:    "https://adb-1.azuredatabricks.net/oidc",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	info := Inspect(signed, now)
	assert.Equal(t, "jwt", info.Format)
	assert.Equal(t, "jane@example.com", info.Subject)
	assert.Equal(t, "https://adb-1.azuredatabricks.net/oidc", info.Issuer)
	require.NotNil(t, info.ExpiresAt)
	assert.True(t, info.Expired)

	assert.Equal(t, TokenInfo{Format: "opaque"}, Inspect("dapi0123456789", now))
}
