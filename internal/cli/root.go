package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/kubiyabot/databricks-mcp/internal/config"
	"github.com/kubiyabot/databricks-mcp/internal/output"
	"github.com/kubiyabot/databricks-mcp/internal/pterm"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	debug bool
	plain bool
}

func Execute(cfg *config.Config) error {
	return NewRootCommand(cfg).Execute()
}

// NewRootCommand builds the command tree
func NewRootCommand(cfg *config.Config) *cobra.Command {
	opts := &globalOptions{debug: cfg.Debug}

	rootCmd := &cobra.Command{
		Use:   "databricks-mcp",
		Short: "MCP server bridging tools to Databricks agent endpoints",
		Long: `databricks-mcp exposes a Databricks agent (and optionally a multi-agent
supervisor) as Model Context Protocol tools. Deployed as a Databricks App it
forwards every call with the end user's delegated (OBO) token.

Quick Start:
  • Serve locally over stdio:   databricks-mcp serve
  • Serve over HTTP:            databricks-mcp serve --transport http --addr :8000
  • Test an endpoint directly:  databricks-mcp query-agent --endpoint my-agent --prompt "hi"
  • Test a deployed app:        databricks-mcp query-remote --app-url https://<app-url>`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", opts.debug, "Enable debug output (or set DATABRICKS_MCP_DEBUG=true)")
	rootCmd.PersistentFlags().BoolVar(&opts.plain, "plain", false, "Disable colours and spinners")

	rootCmd.AddCommand(
		newServeCommand(cfg),
		newQueryCommand(cfg, opts, agentTarget),
		newQueryCommand(cfg, opts, supervisorTarget),
		newQueryRemoteCommand(cfg, opts),
		newVersionCommand(),
	)

	return rootCmd
}

// markdownStyle is the glamour style agent replies are rendered with
const markdownStyle = "dracula"

// harness bundles the output helpers of the query commands
type harness struct {
	log    *pterm.Logger
	mode   output.OutputMode
	out    io.Writer
	render bool
}

func newHarness(cmd *cobra.Command, opts *globalOptions) *harness {
	out := cmd.OutOrStdout()
	mode := output.DetectMode()

	plain := opts.plain || out != io.Writer(os.Stdout)
	if pterm.Configure(plain) {
		plain = true
		mode = output.OutputModeCI
		output.DisableColor()
	}

	return &harness{
		log:    pterm.NewLoggerTo(out, opts.debug, plain),
		mode:   mode,
		out:    out,
		render: renderMarkdown(plain, mode),
	}
}

// renderMarkdown reports whether agent replies are rendered as markdown.
// Plain output and CI runs keep the text as received.
func renderMarkdown(plain bool, mode output.OutputMode) bool {
	return !plain && mode == output.OutputModeInteractive
}

// markdown renders an agent reply for the terminal. The text is returned
// unchanged when rendering is off or fails.
func (h *harness) markdown(text string) string {
	if !h.render || strings.TrimSpace(text) == "" {
		return text
	}
	rendered, err := glamour.Render(text, markdownStyle)
	if err != nil {
		h.log.Debug("Markdown rendering failed", "error", err)
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

func (h *harness) spinner(message string) *output.Spinner {
	return output.NewSpinner(message, h.mode)
}
