package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/kubiyabot/databricks-mcp/internal/cli"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

func main() {
	// Load the configuration
	cfg, err := config.Load(afero.NewOsFs(), os.Getenv(config.EnvConfigFile))
	if err != nil {
		fmt.Fprintln(os.Stderr, clierrors.FormatSimple(clierrors.ConfigError(err)))
		os.Exit(clierrors.ExitCodeFromError(clierrors.ConfigError(err)))
	}

	// Execute with config
	if err := cli.Execute(cfg); err != nil {
		fmt.Fprintln(os.Stderr, clierrors.FormatSimple(err))
		os.Exit(clierrors.ExitCodeFromError(err))
	}
}
