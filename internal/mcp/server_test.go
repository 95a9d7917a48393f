package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubiyabot/databricks-mcp/internal/agent"
	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	"github.com/kubiyabot/databricks-mcp/internal/health"
	"github.com/kubiyabot/databricks-mcp/internal/workspace"
)

type fakeIdentity struct {
	identity *workspace.Identity
	err      error
}

func (f *fakeIdentity) CurrentUser(context.Context) (*workspace.Identity, error) {
	return f.identity, f.err
}

// fakeServing answers every responses call with the given status and body
// and records the bearer tokens it saw.
type fakeServing struct {
	mu     sync.Mutex
	status int
	body   string
	tokens []string
	models []string
}

func (f *fakeServing) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agent.ResponsesRequest
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req)
		f.mu.Lock()
		f.tokens = append(f.tokens, r.Header.Get("Authorization"))
		f.models = append(f.models, req.Model)
		f.mu.Unlock()
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(host string) *config.Config {
	cfg := config.Default()
	cfg.WorkspaceURL = host
	cfg.AgentEndpointName = "agent-ep"
	cfg.AgentDescription = "Answers questions about quarterly sales."
	return cfg
}

func newTestClient(t *testing.T, s *Server) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{Name: "test-client", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initRequest)
	require.NoError(t, err)
	return c
}

func callJSON(t *testing.T, c *client.Client, name string, args map[string]any) map[string]any {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload), text.Text)
	return payload
}

func TestListTools(t *testing.T) {
	t.Run("agent only", func(t *testing.T) {
		s, err := NewServer(testConfig("https://example.cloud.databricks.com"), Dependencies{
			Tokens:   auth.StaticToken(""),
			Identity: &fakeIdentity{},
		})
		require.NoError(t, err)

		tools, err := newTestClient(t, s).ListTools(context.Background(), mcp.ListToolsRequest{})
		require.NoError(t, err)

		names := map[string]string{}
		for _, tool := range tools.Tools {
			names[tool.Name] = tool.Description
		}
		assert.Len(t, names, 3)
		assert.Contains(t, names, ToolHealth)
		assert.Contains(t, names, ToolGetCurrentUser)
		assert.Contains(t, names[ToolAskAgent], "Answers questions about quarterly sales.")
		assert.Contains(t, names[ToolAskAgent], "'agent-ep'")
		assert.NotContains(t, names, ToolAskSupervisor)
	})

	t.Run("supervisor variant", func(t *testing.T) {
		cfg := testConfig("https://example.cloud.databricks.com")
		cfg.SupervisorEndpointName = "mas-ep"
		cfg.SupervisorDescription = "Routes questions to specialist agents."

		s, err := NewServer(cfg, Dependencies{Tokens: auth.StaticToken(""), Identity: &fakeIdentity{}})
		require.NoError(t, err)

		tools, err := newTestClient(t, s).ListTools(context.Background(), mcp.ListToolsRequest{})
		require.NoError(t, err)

		var found bool
		for _, tool := range tools.Tools {
			if tool.Name == ToolAskSupervisor {
				found = true
				assert.Contains(t, tool.Description, "'mas-ep'")
				assert.Contains(t, tool.Description, "Routes questions to specialist agents.")
			}
		}
		assert.True(t, found)
	})
}

func TestHealthTool(t *testing.T) {
	serving := &fakeServing{status: http.StatusOK, body: `{"output":[]}`}
	host := serving.start(t).URL

	s, err := NewServer(testConfig(host), Dependencies{
		Tokens:   auth.StaticToken(""),
		Identity: &fakeIdentity{err: fmt.Errorf("no credentials")},
	})
	require.NoError(t, err)
	c := newTestClient(t, s)

	fast := callJSON(t, c, ToolHealth, nil)
	assert.Equal(t, map[string]any{"status": "healthy", "message": "MCP server is running."}, fast)

	deep := callJSON(t, c, ToolHealth, map[string]any{"deep": true})
	assert.Equal(t, "degraded", deep["status"])
	checks := deep["checks"].(map[string]any)
	assert.Equal(t, "warning", checks["obo_token"].(map[string]any)["status"])
	assert.Equal(t, "warning", checks["user_auth"].(map[string]any)["status"])
	assert.Equal(t, "ok", checks["agent_config"].(map[string]any)["status"])
	assert.Equal(t, "skipped", checks["agent_connectivity"].(map[string]any)["status"])
	assert.Empty(t, serving.tokens)

	details := checks["server"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "uptime")
	assert.Contains(t, details, "active_sessions")
	tools := details["tools"].(map[string]any)
	assert.Equal(t, float64(1), tools[ToolHealth].(map[string]any)["calls"])
}

func TestToolTimeouts(t *testing.T) {
	cfg := testConfig("https://h")
	cfg.AgentTimeout = 90 * time.Second

	s, err := NewServer(cfg, Dependencies{Tokens: auth.StaticToken("")})
	require.NoError(t, err)

	assert.Equal(t, 100*time.Second, s.ToolTimeout(ToolAskAgent))
	assert.Equal(t, health.IdentityTimeout+100*time.Second, s.ToolTimeout(ToolHealth))
	assert.Greater(t, s.ToolTimeout(ToolHealth), s.ToolTimeout(ToolAskAgent))
	assert.Equal(t, time.Minute, s.ToolTimeout(ToolGetCurrentUser))
}

func TestGetCurrentUser(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		s, err := NewServer(testConfig("https://h"), Dependencies{
			Tokens: auth.StaticToken(""),
			Identity: &fakeIdentity{identity: &workspace.Identity{
				DisplayName: "Jane Doe", UserName: "jane@example.com", Active: true,
			}},
		})
		require.NoError(t, err)

		payload := callJSON(t, newTestClient(t, s), ToolGetCurrentUser, nil)
		assert.Equal(t, map[string]any{"display_name": "Jane Doe", "user_name": "jane@example.com", "active": true}, payload)
	})

	t.Run("failure never propagates", func(t *testing.T) {
		s, err := NewServer(testConfig("https://h"), Dependencies{
			Tokens:   auth.StaticToken(""),
			Identity: &fakeIdentity{err: fmt.Errorf("cannot configure default credentials")},
		})
		require.NoError(t, err)

		payload := callJSON(t, newTestClient(t, s), ToolGetCurrentUser, nil)
		assert.Equal(t, "cannot configure default credentials", payload["error"])
		assert.Equal(t, "Failed to retrieve user information", payload["message"])
		assert.Equal(t, int64(1), s.Metrics().Tool(ToolGetCurrentUser).Failures)
	})
}

func TestAskAgentTool(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		status int
		body   string
		prompt any
		check  func(t *testing.T, payload map[string]any)
	}{
		{
			name:   "reply text",
			token:  "user-token",
			status: http.StatusOK,
			body:   `{"output":[{"content":[{"text":"Sales grew"},{"text":"12%."}]}]}`,
			prompt: "How did sales do?",
			check: func(t *testing.T, payload map[string]any) {
				assert.Equal(t, map[string]any{"response": "Sales grew 12%."}, payload)
			},
		},
		{
			name:   "no token",
			status: http.StatusOK,
			prompt: "hi",
			check: func(t *testing.T, payload map[string]any) {
				assert.Equal(t, "No OBO token available", payload["error"])
				assert.NotEmpty(t, payload["message"])
				assert.NotContains(t, payload, "response")
			},
		},
		{
			name:   "missing prompt argument",
			token:  "user-token",
			status: http.StatusOK,
			check: func(t *testing.T, payload map[string]any) {
				assert.Equal(t, "prompt is required", payload["error"])
			},
		},
		{
			name:   "server error",
			token:  "user-token",
			status: http.StatusBadGateway,
			body:   "bad gateway",
			prompt: "hi",
			check: func(t *testing.T, payload map[string]any) {
				assert.Equal(t, "Failed to query the agent", payload["message"])
				assert.Contains(t, payload, "debug")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serving := &fakeServing{status: tt.status, body: tt.body}
			host := serving.start(t).URL

			s, err := NewServer(testConfig(host), Dependencies{
				Tokens:   auth.StaticToken(tt.token),
				Identity: &fakeIdentity{},
			})
			require.NoError(t, err)

			args := map[string]any{}
			if tt.prompt != nil {
				args["prompt"] = tt.prompt
			}
			payload := callJSON(t, newTestClient(t, s), ToolAskAgent, args)

			_, hasResponse := payload["response"]
			_, hasError := payload["error"]
			assert.True(t, hasResponse != hasError, "exactly one of response or error must be set")
			tt.check(t, payload)
		})
	}
}

func TestAskSupervisorUsesItsEndpoint(t *testing.T) {
	serving := &fakeServing{status: http.StatusOK, body: `{"output":[{"content":[{"text":"routed"}]}]}`}
	host := serving.start(t).URL

	cfg := testConfig(host)
	cfg.SupervisorEndpointName = "mas-ep"

	s, err := NewServer(cfg, Dependencies{Tokens: auth.StaticToken("t"), Identity: &fakeIdentity{}})
	require.NoError(t, err)

	payload := callJSON(t, newTestClient(t, s), ToolAskSupervisor, map[string]any{"prompt": "hi"})
	assert.Equal(t, "routed", payload["response"])
	assert.Equal(t, []string{"mas-ep"}, serving.models)
}

func TestHTTPTransportForwardsToken(t *testing.T) {
	serving := &fakeServing{status: http.StatusOK, body: `{"output":[{"content":[{"text":"hello"}]}]}`}
	host := serving.start(t).URL

	cfg := testConfig(host)
	cfg.Hosted = true

	s, err := NewServer(cfg, Dependencies{Identity: &fakeIdentity{}})
	require.NoError(t, err)

	httpServer := httptest.NewServer(s.Handler())
	defer httpServer.Close()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(httpServer.URL + HealthzPath)
		require.NoError(t, err)
		defer resp.Body.Close()

		var report map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", report["status"])
	})

	t.Run("forwarded header reaches the agent", func(t *testing.T) {
		c, err := client.NewStreamableHttpClient(httpServer.URL+EndpointPath,
			transport.WithHTTPHeaders(map[string]string{config.DefaultTokenHeader: "obo-token"}))
		require.NoError(t, err)
		defer c.Close()

		ctx := context.Background()
		require.NoError(t, c.Start(ctx))
		initRequest := mcp.InitializeRequest{}
		initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initRequest.Params.ClientInfo = mcp.Implementation{Name: "http-client", Version: "1.0.0"}
		_, err = c.Initialize(ctx, initRequest)
		require.NoError(t, err)

		payload := callJSON(t, c, ToolAskAgent, map[string]any{"prompt": "hi"})
		assert.Equal(t, "hello", payload["response"])
		require.Len(t, serving.tokens, 1)
		assert.Equal(t, "Bearer obo-token", serving.tokens[0])
	})
}
