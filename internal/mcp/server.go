package mcp

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kubiyabot/databricks-mcp/internal/agent"
	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	"github.com/kubiyabot/databricks-mcp/internal/health"
	"github.com/kubiyabot/databricks-mcp/internal/mcp/hooks"
	"github.com/kubiyabot/databricks-mcp/internal/mcp/middleware"
	"github.com/kubiyabot/databricks-mcp/internal/workspace"
)

// Tool names
const (
	ToolHealth         = "health"
	ToolGetCurrentUser = "get_current_user"
	ToolAskAgent       = "ask_agent"
	ToolAskSupervisor  = "ask_supervisor"
)

// defaultToolTimeout applies to tools that make no agent call
const defaultToolTimeout = time.Minute

// Dependencies are the collaborators of the tool handlers. Nil fields are
// built from the configuration.
type Dependencies struct {
	Tokens     auth.TokenSource
	Identity   workspace.IdentityResolver
	Agent      *agent.Invoker
	Supervisor *agent.Invoker
	Logger     *log.Logger
}

// Server binds the Databricks tools to an MCP server
type Server struct {
	cfg        *config.Config
	logger     *log.Logger
	tokens     auth.TokenSource
	identity   workspace.IdentityResolver
	agent      *agent.Invoker
	supervisor *agent.Invoker
	health     *health.Aggregator

	hooks           hooks.Hooks
	metrics         *hooks.MetricsHooks
	rateLimit       *middleware.RateLimitMiddleware
	timeouts        *middleware.TimeoutMiddleware
	middlewareChain middleware.Middleware
	mcpServer       *server.MCPServer
}

// NewLogger returns the server logger. Output goes to stderr so the stdio
// transport stays clean.
func NewLogger(debug bool) *log.Logger {
	flags := log.LstdFlags
	if debug {
		flags |= log.Lshortfile
	}
	return log.New(os.Stderr, "[MCP] ", flags)
}

// NewServer creates the MCP server and registers every tool
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	tokens := deps.Tokens
	if tokens == nil {
		tokens = auth.NewTokenProvider(cfg)
	}

	identity := deps.Identity
	if identity == nil {
		identity = workspace.NewFactory(cfg.WorkspaceURL, tokens, nil)
	}

	agentInvoker := deps.Agent
	if agentInvoker == nil {
		agentInvoker = agent.NewInvoker(cfg.WorkspaceURL, cfg.AgentEndpointName, tokens,
			agent.NewClient(cfg.ServingBaseURL(), cfg.AgentTimeout), logger)
	}

	supervisor := deps.Supervisor
	if supervisor == nil && cfg.SupervisorEnabled() {
		supervisor = agent.NewInvoker(cfg.WorkspaceURL, cfg.SupervisorEndpointName, tokens,
			agent.NewClient(cfg.ServingBaseURL(), cfg.AgentTimeout), logger)
	}

	metrics := hooks.NewMetricsHooks()
	compositeHooks := hooks.NewCompositeHooks(
		hooks.NewLoggingHooks(logger),
		hooks.NewSentryHooks(),
		metrics,
	)

	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Calls to the agent are bounded by the HTTP client timeout; the
	// middleware adds a margin on top of it.
	timeoutMW := middleware.NewTimeoutMiddleware(defaultToolTimeout)
	timeoutMW.SetToolTimeout(ToolAskAgent, cfg.AgentTimeout+10*time.Second)
	timeoutMW.SetToolTimeout(ToolAskSupervisor, cfg.AgentTimeout+10*time.Second)
	// A deep health check runs the identity lookup and then the agent probe.
	timeoutMW.SetToolTimeout(ToolHealth, health.IdentityTimeout+cfg.AgentTimeout+10*time.Second)
	for tool := range cfg.ToolTimeouts {
		if timeout := cfg.ToolTimeout(tool); timeout > 0 {
			timeoutMW.SetToolTimeout(tool, timeout)
		}
	}

	// The recovery middleware is innermost so it also covers the goroutine
	// started by the timeout middleware.
	chain := middleware.Chain(
		middleware.NewLoggingMiddleware(logger).Apply,
		rateLimitMW.Apply,
		timeoutMW.Apply,
		middleware.NewErrorRecoveryMiddleware(logger).Apply,
	)

	s := &Server{
		cfg:             cfg,
		logger:          logger,
		tokens:          tokens,
		identity:        identity,
		agent:           agentInvoker,
		supervisor:      supervisor,
		health:          health.NewAggregator(cfg, tokens, identity, agentInvoker, logger),
		hooks:           compositeHooks,
		metrics:         metrics,
		rateLimit:       rateLimitMW,
		timeouts:        timeoutMW,
		middlewareChain: chain,
	}

	s.health.SetServerStats(metrics.Snapshot)

	tracker := hooks.NewSessionTracker(compositeHooks, rateLimitMW.Cleanup)

	s.mcpServer = server.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(tracker.ServerHooks()),
		server.WithInstructions("Tools for querying a Databricks agent endpoint on behalf of the calling user."),
	)

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to add tools: %w", err)
	}

	return s, nil
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Metrics returns the in-memory tool counters
func (s *Server) Metrics() *hooks.MetricsHooks {
	return s.metrics
}

// ToolTimeout returns the middleware timeout of a tool
func (s *Server) ToolTimeout(name string) time.Duration {
	return s.timeouts.Timeout(name)
}

// Start runs the start hooks
func (s *Server) Start(ctx context.Context) {
	s.hooks.OnServerStart(ctx)
	s.logger.Printf("Starting MCP server %s v%s (hosted=%v transport=%s)",
		s.cfg.ServerName, s.cfg.ServerVersion, s.cfg.Hosted, s.cfg.Transport)
	if missing := s.cfg.MissingAgentSettings(); len(missing) > 0 {
		s.logger.Printf("Agent is not configured, missing %v", missing)
	}
}

// Stop runs the stop hooks
func (s *Server) Stop(ctx context.Context) {
	s.logger.Println("Shutting down MCP server...")
	s.hooks.OnServerStop(ctx)
}
