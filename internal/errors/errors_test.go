package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeThroughWrapping(t *testing.T) {
	base := RemoteCallError(404, fmt.Errorf("endpoint missing"))
	wrapped := fmt.Errorf("ask agent: %w", base)

	assert.Equal(t, 404, StatusCode(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeAPI))
	assert.Equal(t, 0, StatusCode(fmt.Errorf("plain")))
	assert.False(t, IsType(nil, ErrorTypeAPI))
}

func TestExitCodeFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitCodeSuccess},
		{name: "plain error", err: fmt.Errorf("boom"), want: ExitCodeRuntime},
		{name: "auth", err: AuthError(fmt.Errorf("no token")), want: ExitCodeAuth},
		{name: "config", err: ConfigError(fmt.Errorf("missing")), want: ExitCodeConfig},
		{name: "remote call", err: RemoteCallError(500, fmt.Errorf("down")), want: ExitCodeAPI},
		{name: "remote call unauthorized", err: RemoteCallError(401, fmt.Errorf("bad token")), want: ExitCodeAuth},
		{name: "remote call forbidden", err: RemoteCallError(403, fmt.Errorf("no permission")), want: ExitCodeAuth},
		{name: "remote call not found", err: fmt.Errorf("ask: %w", RemoteCallError(404, fmt.Errorf("missing"))), want: ExitCodeNotFound},
		{name: "wrapped network", err: fmt.Errorf("x: %w", NetworkError(fmt.Errorf("dial"))), want: ExitCodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFromError(tt.err))
		})
	}
}

func TestFormatError(t *testing.T) {
	err := RemoteCallError(401, fmt.Errorf("unauthorized"))
	assert.Equal(t, "✗ Remote Call Error (HTTP 401): unauthorized", FormatError(err))

	withContext := ConfigErrorWithContext(fmt.Errorf("WORKSPACE_URL is not set"), "Set it in app.yaml")
	assert.Equal(t, "✗ Configuration Error: WORKSPACE_URL is not set\n\nSet it in app.yaml", FormatSimple(withContext))
	assert.Equal(t, "✗ Error: boom", FormatSimple(fmt.Errorf("boom")))
}
