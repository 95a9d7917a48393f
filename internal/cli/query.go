package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kubiyabot/databricks-mcp/internal/agent"
	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
	sentryutil "github.com/kubiyabot/databricks-mcp/internal/sentry"
)

// queryTarget describes one of the endpoints the query commands can test
type queryTarget struct {
	use           string
	title         string
	label         string
	defaultPrompt string
	endpoint      func(*config.Config) string
}

var (
	agentTarget = queryTarget{
		use:           "query-agent",
		title:         "Testing Agent Endpoint",
		label:         "agent",
		defaultPrompt: "What can you help me with?",
		endpoint:      func(c *config.Config) string { return c.AgentEndpointName },
	}
	supervisorTarget = queryTarget{
		use:           "query-supervisor",
		title:         "Testing Multi-Agent Supervisor Endpoint",
		label:         "supervisor",
		defaultPrompt: "What sub-agents or tools do you have access to?",
		endpoint:      func(c *config.Config) string { return c.SupervisorEndpointName },
	}
)

type queryOptions struct {
	host     string
	token    string
	endpoint string
	prompt   string
	timeout  time.Duration
	raw      bool
}

func newQueryCommand(cfg *config.Config, global *globalOptions, target queryTarget) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   target.use,
		Short: fmt.Sprintf("Query the %s endpoint directly, bypassing the MCP server", target.label),
		Long: fmt.Sprintf(`Send one prompt to the %s serving endpoint through the OpenAI-compatible
responses API at <host>/serving-endpoints. Useful to verify the endpoint works
before testing it through the MCP server.`, target.label),
		Example: fmt.Sprintf(`  databricks-mcp %s \
    --host https://adb-1234567890.12.azuredatabricks.net \
    --token "$DATABRICKS_TOKEN" \
    --endpoint my-endpoint \
    --prompt %q`, target.use, target.defaultPrompt),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), newHarness(cmd, global), target, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", cfg.WorkspaceURL, "Databricks workspace URL")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("DATABRICKS_TOKEN"), "Databricks access token")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", target.endpoint(cfg), "Serving endpoint name")
	cmd.Flags().StringVar(&opts.prompt, "prompt", target.defaultPrompt, "Prompt to send")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", cfg.AgentTimeout, "Request timeout")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the raw JSON result instead of the reply text")

	return cmd
}

func (o *queryOptions) validate() error {
	var missing []string
	if o.host == "" {
		missing = append(missing, "--host")
	}
	if o.token == "" {
		missing = append(missing, "--token")
	}
	if o.endpoint == "" {
		missing = append(missing, "--endpoint")
	}
	if len(missing) > 0 {
		return clierrors.ValidationError(
			fmt.Errorf("missing required flags: %s", strings.Join(missing, ", ")),
			"Flags default to WORKSPACE_URL, DATABRICKS_TOKEN and the configured endpoint name.",
		)
	}
	return nil
}

func runQuery(ctx context.Context, h *harness, target queryTarget, opts *queryOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.validate(); err != nil {
		return err
	}

	host := config.NormalizeHost(opts.host)
	baseURL := config.ServingBaseURL(host)

	h.log.Section(target.title)
	h.log.Info("Workspace: " + host)
	h.log.Info("Endpoint: " + opts.endpoint)
	h.log.Info("Prompt: " + opts.prompt)
	h.log.Debug("Responses API", "base_url", baseURL, "timeout", opts.timeout)

	h.log.Section("Step 1: Creating client")
	client := agent.NewClient(baseURL, opts.timeout)
	invoker := agent.NewInvoker(host, opts.endpoint, auth.StaticToken(opts.token), client, nil)
	h.log.Success("Client created for " + baseURL)

	h.log.Section(fmt.Sprintf("Step 2: Calling %s endpoint", target.label))
	var result agent.Result
	err := sentryutil.WithTransaction(ctx, "cli."+target.use, func(ctx context.Context) error {
		spin := h.spinner("Waiting for " + opts.endpoint)
		spin.Start()
		result = invoker.Ask(ctx, opts.prompt)
		if result.Failed() {
			spin.Fail(fmt.Sprintf("Call failed after %v", spin.Elapsed().Round(time.Millisecond)))
			return fmt.Errorf("%s", result.Error)
		}
		spin.Success(fmt.Sprintf("Response received in %v", spin.Elapsed().Round(time.Millisecond)))
		return nil
	})

	switch {
	case opts.raw || err != nil:
		data, _ := json.MarshalIndent(result, "", "  ")
		h.log.Block(string(data))
	case result.Note != "":
		// the raw body of an unrecognised reply is not markdown
		h.log.Block(result.Response)
		h.log.Warning(result.Note)
	default:
		h.log.Block(h.markdown(result.Response))
	}

	if err != nil {
		h.log.Error(result.Message)
		cause := fmt.Errorf("%s: %s", result.Message, result.Error)
		if result.StatusCode != 0 {
			return clierrors.RemoteCallError(result.StatusCode, cause)
		}
		return clierrors.RuntimeError(cause)
	}

	h.log.Success("Query completed successfully!")
	return nil
}
