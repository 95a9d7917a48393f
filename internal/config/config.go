package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTokenHeader carries the end user's delegated token in Databricks Apps
	DefaultTokenHeader = "x-forwarded-access-token"

	// DefaultAgentTimeout bounds a single agent round-trip
	DefaultAgentTimeout = 120 * time.Second

	defaultAddr = ":8000"
)

// Environment variables read once at startup
const (
	EnvAppName               = "DATABRICKS_APP_NAME"
	EnvAppPort               = "DATABRICKS_APP_PORT"
	EnvWorkspaceURL          = "WORKSPACE_URL"
	EnvDatabricksHost        = "DATABRICKS_HOST"
	EnvAgentEndpointName     = "AGENT_ENDPOINT_NAME"
	EnvAgentDescription      = "AGENT_DESCRIPTION"
	EnvSupervisorEndpoint    = "SUPERVISOR_ENDPOINT_NAME"
	EnvSupervisorDescription = "SUPERVISOR_DESCRIPTION"
	EnvAgentTimeout          = "AGENT_TIMEOUT"
	EnvDebug                 = "DATABRICKS_MCP_DEBUG"
	EnvConfigFile            = "DATABRICKS_MCP_CONFIG"
)

// Config is the process-wide configuration. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	// Hosted is true when running as a Databricks App. It decides whether a
	// delegated user token is expected on every request.
	Hosted  bool   `yaml:"-"`
	AppName string `yaml:"-"`

	TokenHeader string `yaml:"token_header"`

	WorkspaceURL      string `yaml:"workspace_url"`
	AgentEndpointName string `yaml:"agent_endpoint_name"`
	AgentDescription  string `yaml:"agent_description"`

	SupervisorEndpointName string `yaml:"supervisor_endpoint_name"`
	SupervisorDescription  string `yaml:"supervisor_description"`

	AgentTimeout time.Duration `yaml:"agent_timeout"`

	ServerName    string          `yaml:"server_name"`
	ServerVersion string          `yaml:"server_version"`
	Transport     string          `yaml:"transport"`
	Addr          string          `yaml:"addr"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	ToolTimeouts  map[string]int  `yaml:"tool_timeouts,omitempty"` // in seconds

	Debug bool `yaml:"debug"`
}

// RateLimitConfig defines per-session rate limiting for tool calls
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		TokenHeader:   DefaultTokenHeader,
		AgentTimeout:  DefaultAgentTimeout,
		ServerName:    "databricks-agent-mcp",
		ServerVersion: "1.0.0",
		Transport:     "stdio",
		Addr:          defaultAddr,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10.0,
			Burst:             20,
		},
	}
}

// DefaultPath returns the default location of the optional config file
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".databricks-mcp", "config.yaml")
}

// Load builds the configuration from defaults, an optional YAML (or JSON)
// file and the environment, in that order of precedence.
func Load(fs afero.Fs, configFile string) (*Config, error) {
	cfg := Default()

	configPath := configFile
	if configPath == "" {
		configPath = DefaultPath()
	}

	if configPath != "" {
		data, err := afero.ReadFile(fs, configPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		} else if configFile != "" {
			// an explicitly requested file must exist
			return nil, fmt.Errorf("config file %s not found", configFile)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.WorkspaceURL = NormalizeHost(cfg.WorkspaceURL)
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = DefaultTokenHeader
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultAgentTimeout
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if appName, ok := os.LookupEnv(EnvAppName); ok {
		c.Hosted = true
		c.AppName = appName
		// Databricks Apps always serve over HTTP
		c.Transport = "http"
	}

	if port := os.Getenv(EnvAppPort); port != "" {
		c.Addr = ":" + port
	}

	if url := os.Getenv(EnvWorkspaceURL); url != "" {
		c.WorkspaceURL = url
	} else if c.WorkspaceURL == "" {
		c.WorkspaceURL = os.Getenv(EnvDatabricksHost)
	}

	if name := os.Getenv(EnvAgentEndpointName); name != "" {
		c.AgentEndpointName = name
	}
	if desc := os.Getenv(EnvAgentDescription); desc != "" {
		c.AgentDescription = desc
	}
	if name := os.Getenv(EnvSupervisorEndpoint); name != "" {
		c.SupervisorEndpointName = name
	}
	if desc := os.Getenv(EnvSupervisorDescription); desc != "" {
		c.SupervisorDescription = desc
	}

	if raw := os.Getenv(EnvAgentTimeout); raw != "" {
		timeout, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvAgentTimeout, raw, err)
		}
		c.AgentTimeout = timeout
	}

	if debug := os.Getenv(EnvDebug); debug != "" {
		c.Debug = debug == "true" || debug == "1"
	}

	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds
func parseDuration(raw string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

// NormalizeHost adds an https scheme to a bare workspace host and strips
// trailing slashes. Databricks Apps export DATABRICKS_HOST without a scheme.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/")
}

// ServingBaseURL is the OpenAI-compatible base URL of the workspace's
// serving endpoints.
func (c *Config) ServingBaseURL() string {
	return ServingBaseURL(c.WorkspaceURL)
}

// ServingBaseURL returns <host>/serving-endpoints for a workspace host
func ServingBaseURL(host string) string {
	return NormalizeHost(host) + "/serving-endpoints"
}

// MissingAgentSettings names the environment variables that must be set
// before the agent can be called. Empty means the agent is configured.
func (c *Config) MissingAgentSettings() []string {
	var missing []string
	if c.WorkspaceURL == "" {
		missing = append(missing, EnvWorkspaceURL)
	}
	if c.AgentEndpointName == "" {
		missing = append(missing, EnvAgentEndpointName)
	}
	return missing
}

// SupervisorEnabled reports whether the supervisor variant is deployed
func (c *Config) SupervisorEnabled() bool {
	return c.SupervisorEndpointName != ""
}

// ToolTimeout returns the configured timeout for a tool, or zero
func (c *Config) ToolTimeout(tool string) time.Duration {
	if seconds, ok := c.ToolTimeouts[tool]; ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
