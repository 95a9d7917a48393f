package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
	"github.com/kubiyabot/databricks-mcp/internal/mcp"
	sentryutil "github.com/kubiyabot/databricks-mcp/internal/sentry"
	"github.com/kubiyabot/databricks-mcp/internal/version"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	var (
		configFile string
		transport  string
		addr       string
		rateLimit  float64
		burst      int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server exposing health, get_current_user and ask_agent (plus
ask_supervisor when SUPERVISOR_ENDPOINT_NAME is set).

Inside a Databricks App (DATABRICKS_APP_NAME set) the server always uses the
streamable HTTP transport on DATABRICKS_APP_PORT.`,
		Example: `  # Local development over stdio
  databricks-mcp serve

  # Streamable HTTP on port 8000, MCP endpoint at /mcp
  databricks-mcp serve --transport http --addr :8000

  # Explicit config file
  databricks-mcp serve --config ./databricks-mcp.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveCfg := cfg
			if configFile != "" {
				loaded, err := config.Load(afero.NewOsFs(), configFile)
				if err != nil {
					return clierrors.ConfigErrorWithContext(err, "Check the path passed to --config.")
				}
				serveCfg = loaded
			}

			flags := cmd.Flags()
			if flags.Changed("transport") && !serveCfg.Hosted {
				serveCfg.Transport = transport
			}
			if flags.Changed("addr") {
				serveCfg.Addr = addr
			}
			if flags.Changed("rate-limit") {
				serveCfg.RateLimit.RequestsPerSecond = rateLimit
			}
			if flags.Changed("burst") {
				serveCfg.RateLimit.Burst = burst
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				serveCfg.Debug = true
			}
			serveCfg.ServerVersion = version.ServerVersion(serveCfg.ServerVersion)

			if err := sentryutil.Initialize(sentryutil.Options{
				Release:      version.Version,
				AppName:      serveCfg.AppName,
				WorkspaceURL: serveCfg.WorkspaceURL,
				Endpoint:     serveCfg.AgentEndpointName,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			defer sentryutil.Flush(2 * time.Second)

			server, err := mcp.NewServer(serveCfg, mcp.Dependencies{
				Logger: mcp.NewLogger(serveCfg.Debug),
			})
			if err != nil {
				return clierrors.RuntimeError(fmt.Errorf("failed to create server: %w", err))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch serveCfg.Transport {
			case "stdio":
				return server.ServeStdio(ctx)
			case "http":
				return server.ServeHTTP(ctx, serveCfg.Addr)
			default:
				return clierrors.ValidationError(
					fmt.Errorf("unknown transport %q", serveCfg.Transport),
					"Use --transport stdio or --transport http.",
				)
			}
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML config file (default ~/.databricks-mcp/config.yaml)")
	cmd.Flags().StringVarP(&transport, "transport", "t", cfg.Transport, "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", cfg.Addr, "Listen address for the http transport")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", cfg.RateLimit.RequestsPerSecond, "Tool calls per second allowed per session")
	cmd.Flags().IntVar(&burst, "burst", cfg.RateLimit.Burst, "Burst size of the per-session rate limit")

	return cmd
}
