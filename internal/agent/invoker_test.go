package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubiyabot/databricks-mcp/internal/auth"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

func strPtr(s string) *string { return &s }

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			name: "nil response",
			resp: nil,
			want: "",
		},
		{
			name: "two texts joined with a space",
			resp: &Response{Output: []OutputItem{{Content: []ContentItem{{Text: strPtr("a")}, {Text: strPtr("b")}}}}},
			want: "a b",
		},
		{
			name: "skips items without text and trims",
			resp: &Response{Output: []OutputItem{
				{Type: "reasoning"},
				{Content: []ContentItem{{Type: "output_text", Text: strPtr(" first")}, {Type: "refusal"}}},
				{Content: []ContentItem{{Text: strPtr("")}, {Text: strPtr("second ")}}},
			}},
			want: "first second",
		},
		{
			name: "no output",
			resp: &Response{ID: "resp_1"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.resp))
		})
	}
}

// servingEndpoint fakes <host>/serving-endpoints/responses
func servingEndpoint(t *testing.T, status int, body string, inspect func(*http.Request, ResponsesRequest)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/serving-endpoints/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		var req ResponsesRequest
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("request body is not a responses request: %v", err)
		}
		if inspect != nil {
			inspect(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAsk(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantResult  Result
		wantMessage string
		wantDebug   bool
	}{
		{
			name:       "text reply",
			status:     http.StatusOK,
			body:       `{"output":[{"type":"message","content":[{"type":"output_text","text":"a"},{"type":"output_text","text":"b"}]}]}`,
			wantResult: Result{Response: "a b"},
		},
		{
			name:       "no extractable text returns raw body with note",
			status:     http.StatusOK,
			body:       `{"output":[{"type":"function_call"}]}`,
			wantResult: Result{Response: `{"output":[{"type":"function_call"}]}`, Note: "Could not extract text from response"},
		},
		{
			name:       "undecodable body returns raw body with note",
			status:     http.StatusOK,
			body:       `not json`,
			wantResult: Result{Response: "not json", Note: "Could not extract text from response"},
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `{"error_code":"PERMISSION_DENIED"}`,
			wantMessage: "Authentication failed. Check that the App has serving scopes and user has Can Query permission.",
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			body:        `{"error_code":"RESOURCE_DOES_NOT_EXIST"}`,
			wantMessage: "Endpoint 'agent-ep' not found or not accessible.",
		},
		{
			name:        "server error carries debug block",
			status:      http.StatusInternalServerError,
			body:        `upstream exploded`,
			wantMessage: "Failed to query the agent",
			wantDebug:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := servingEndpoint(t, tt.status, tt.body, func(r *http.Request, req ResponsesRequest) {
				assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
				assert.Equal(t, NewSingleTurnRequest("agent-ep", "hello"), req)
			})

			invoker := NewInvoker(server.URL, "agent-ep", auth.StaticToken("user-token"), nil, nil)
			result := invoker.Ask(context.Background(), "hello")

			if tt.wantMessage == "" {
				assert.Equal(t, tt.wantResult, result)
				return
			}

			assert.True(t, result.Failed())
			assert.Contains(t, result.Error, fmt.Sprintf("%d", tt.status))
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Equal(t, tt.status, result.StatusCode)
			if tt.wantDebug {
				require.NotNil(t, result.Debug)
				assert.Equal(t, server.URL+"/serving-endpoints", result.Debug.BaseURL)
				assert.Equal(t, "agent-ep", result.Debug.EndpointName)
			} else {
				assert.Nil(t, result.Debug)
			}
		})
	}
}

type errTokens struct{}

func (errTokens) UserToken(context.Context) (string, bool, error) {
	return "", false, clierrors.AuthError(fmt.Errorf("authentication token not found in request headers (x-forwarded-access-token)"))
}

func TestAskPreconditions(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tests := []struct {
		name     string
		host     string
		endpoint string
		tokens   auth.TokenSource
		prompt   string
		want     Result
	}{
		{
			name:     "empty prompt",
			host:     server.URL,
			endpoint: "agent-ep",
			tokens:   auth.StaticToken("t"),
			prompt:   "   ",
			want:     Result{Error: "prompt is required", Message: "Provide a non-empty prompt for the agent."},
		},
		{
			name:   "missing host and endpoint",
			tokens: auth.StaticToken("t"),
			prompt: "hi",
			want: Result{
				Error:   "WORKSPACE_URL and AGENT_ENDPOINT_NAME is not set",
				Message: "Agent endpoint is not configured. Set WORKSPACE_URL and AGENT_ENDPOINT_NAME.",
			},
		},
		{
			name:     "no token",
			host:     server.URL,
			endpoint: "agent-ep",
			tokens:   auth.StaticToken(""),
			prompt:   "hi",
			want: Result{
				Error:   "No OBO token available",
				Message: "This tool requires OBO authentication. Running locally without token.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := NewInvoker(tt.host, tt.endpoint, tt.tokens, nil, nil)
			assert.Equal(t, tt.want, invoker.Ask(context.Background(), tt.prompt))
		})
	}

	t.Run("token resolution failure", func(t *testing.T) {
		invoker := NewInvoker(server.URL, "agent-ep", errTokens{}, nil, nil)
		result := invoker.Ask(context.Background(), "hi")
		assert.Contains(t, result.Error, "x-forwarded-access-token")
		assert.Equal(t, "Failed to resolve the user token", result.Message)
	})

	assert.False(t, called, "no precondition failure may reach the endpoint")
}

func TestAskNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url+"/serving-endpoints", time.Second)
	invoker := NewInvoker(url, "agent-ep", auth.StaticToken("t"), client, nil)

	result := invoker.Ask(context.Background(), "hi")
	assert.Equal(t, "Failed to query the agent", result.Message)
	assert.Zero(t, result.StatusCode)
	require.NotNil(t, result.Debug)
	assert.Equal(t, url+"/serving-endpoints", result.Debug.BaseURL)
}

func TestProbe(t *testing.T) {
	server := servingEndpoint(t, http.StatusNotFound, `{}`, func(r *http.Request, req ResponsesRequest) {
		assert.Equal(t, "Bearer probe-token", r.Header.Get("Authorization"))
		assert.Equal(t, "ping", req.Input[0].Content)
	})

	invoker := NewInvoker(server.URL, "agent-ep", auth.StaticToken(""), nil, nil)
	err := invoker.Probe(context.Background(), "probe-token")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, clierrors.StatusCode(err))

	unconfigured := NewInvoker("", "", auth.StaticToken(""), nil, nil)
	err = unconfigured.Probe(context.Background(), "t")
	assert.True(t, clierrors.IsType(err, clierrors.ErrorTypeConfig))
}
