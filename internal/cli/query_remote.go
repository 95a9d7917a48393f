package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
	"github.com/kubiyabot/databricks-mcp/internal/mcp"
	"github.com/kubiyabot/databricks-mcp/internal/output"
	"github.com/kubiyabot/databricks-mcp/internal/version"
	"github.com/kubiyabot/databricks-mcp/internal/workspace"
)

const remoteTestPrompt = "Hello, what can you help me with?"

type queryRemoteOptions struct {
	host    string
	token   string
	appURL  string
	timeout time.Duration
}

func newQueryRemoteCommand(cfg *config.Config, global *globalOptions) *cobra.Command {
	opts := &queryRemoteOptions{}

	cmd := &cobra.Command{
		Use:   "query-remote",
		Short: "Exercise every tool of a deployed MCP server",
		Long: `Connect to a deployed server over streamable HTTP with your Databricks token,
list its tools and call each one once. ask_agent and ask_supervisor receive a
short greeting prompt.`,
		Example: `  databricks-mcp query-remote \
    --host https://adb-1234567890.12.azuredatabricks.net \
    --token "$DATABRICKS_TOKEN" \
    --app-url https://my-app-1234.aws.databricksapps.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryRemote(cmd.Context(), newHarness(cmd, global), opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", cfg.WorkspaceURL, "Databricks workspace URL (used to show who you are)")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("DATABRICKS_TOKEN"), "Databricks access token")
	cmd.Flags().StringVar(&opts.appURL, "app-url", "", "Base URL of the deployed app")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*cfg.AgentTimeout, "Overall timeout")

	return cmd
}

// remoteEndpoint returns the MCP endpoint under the app URL
func remoteEndpoint(appURL string) string {
	u := strings.TrimRight(strings.TrimSpace(appURL), "/")
	if strings.HasSuffix(u, mcp.EndpointPath) {
		return u
	}
	return u + mcp.EndpointPath
}

func testArguments(tool string) map[string]any {
	switch tool {
	case mcp.ToolAskAgent, mcp.ToolAskSupervisor:
		return map[string]any{"prompt": remoteTestPrompt}
	case mcp.ToolHealth:
		return map[string]any{"deep": true}
	default:
		return map[string]any{}
	}
}

func runQueryRemote(ctx context.Context, h *harness, opts *queryRemoteOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.appURL == "" || opts.token == "" {
		return clierrors.ValidationError(
			fmt.Errorf("--app-url and --token are required"),
			"DATABRICKS_TOKEN is used when --token is omitted.",
		)
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	endpoint := remoteEndpoint(opts.appURL)
	h.log.Section("Testing Remote MCP Server")
	h.log.Info("MCP endpoint: " + endpoint)

	h.log.Section("Step 1: Resolving identity")
	if opts.host == "" {
		h.log.Warning("No --host given, skipping identity lookup")
	} else {
		factory := workspace.NewFactory(config.NormalizeHost(opts.host), auth.StaticToken(opts.token), nil)
		if me, err := factory.CurrentUser(ctx); err != nil {
			h.log.Warning("Could not resolve the current user: " + err.Error())
		} else {
			h.log.Success(fmt.Sprintf("Authenticated as %s (%s)", me.DisplayName, me.UserName))
		}
	}

	h.log.Section("Step 2: Connecting")
	c, err := mcpclient.NewStreamableHttpClient(endpoint,
		transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + opts.token}))
	if err != nil {
		return clierrors.NetworkErrorWithContext(err, "Check --app-url.")
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return clierrors.NetworkErrorWithContext(err, "Could not reach the app.")
	}

	initRequest := mcptypes.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcptypes.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcptypes.Implementation{Name: "databricks-mcp-query-remote", Version: version.GetVersion()}
	info, err := c.Initialize(ctx, initRequest)
	if err != nil {
		return clierrors.AuthErrorWithContext(err, "The app rejected the handshake. Check the token and that you can use the app.")
	}
	h.log.Success(fmt.Sprintf("Connected to %s %s", info.ServerInfo.Name, info.ServerInfo.Version))

	tools, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return clierrors.RuntimeError(fmt.Errorf("failed to list tools: %w", err))
	}
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	h.log.Info(fmt.Sprintf("Available tools: %s", strings.Join(names, ", ")))

	h.log.Section("Step 3: Calling tools")
	failed := 0
	for _, name := range names {
		req := mcptypes.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = testArguments(name)

		spin := h.spinner("Calling " + name)
		spin.Start()
		result, err := c.CallTool(ctx, req)
		if err != nil {
			spin.Fail(fmt.Sprintf("%s: %v", name, err))
			failed++
			continue
		}
		spin.Success(fmt.Sprintf("%s answered in %v", name, spin.Elapsed().Round(time.Millisecond)))

		if !h.printToolResult(name, result) {
			failed++
		}
	}

	if failed > 0 {
		return clierrors.RuntimeError(fmt.Errorf("%d of %d tool calls failed", failed, len(names)))
	}
	h.log.Success("All tools responded!")
	return nil
}

// printToolResult prints one tool result and reports whether it succeeded
func (h *harness) printToolResult(name string, result *mcptypes.CallToolResult) bool {
	if len(result.Content) == 0 {
		h.log.Warning(name + " returned no content")
		return !result.IsError
	}
	text, ok := mcptypes.AsTextContent(result.Content[0])
	if !ok {
		h.log.Warning(name + " returned non-text content")
		return !result.IsError
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		h.log.Block(text.Text)
		return !result.IsError
	}

	if name == mcp.ToolHealth {
		if status, ok := payload["status"].(string); ok {
			h.log.Info("Health: " + output.StatusLabel(status))
		}
	}

	if reply, ok := payload["response"].(string); ok && h.render && payload["note"] == nil &&
		(name == mcp.ToolAskAgent || name == mcp.ToolAskSupervisor) {
		h.log.Block(h.markdown(reply))
		delete(payload, "response")
	}

	if len(payload) > 0 {
		pretty, _ := json.MarshalIndent(payload, "", "  ")
		h.log.Block(string(pretty))
	}

	if errMsg, ok := payload["error"].(string); ok && errMsg != "" {
		h.log.Error(fmt.Sprintf("%s reported: %s", name, errMsg))
		return false
	}
	return !result.IsError
}
