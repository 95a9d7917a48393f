package health

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
	"github.com/kubiyabot/databricks-mcp/internal/workspace"
)

// Status of a single check
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Overall status of a report
type Overall string

const (
	Healthy   Overall = "healthy"
	Degraded  Overall = "degraded"
	Unhealthy Overall = "unhealthy"
)

// Check names, in the order they run
const (
	CheckServer            = "server"
	CheckOBOToken          = "obo_token"
	CheckUserAuth          = "user_auth"
	CheckAgentConfig       = "agent_config"
	CheckAgentConnectivity = "agent_connectivity"
)

// CheckNames lists every check of a deep report
var CheckNames = []string{
	CheckServer,
	CheckOBOToken,
	CheckUserAuth,
	CheckAgentConfig,
	CheckAgentConnectivity,
}

const (
	msgRunning   = "MCP server is running."
	msgHealthy   = "All systems operational."
	msgDegraded  = "Some checks reported warnings."
	msgUnhealthy = "One or more checks failed."
)

// IdentityTimeout bounds the workspace identity lookup of a deep check so
// the agent probe keeps its own budget.
const IdentityTimeout = 30 * time.Second

// CheckResult is the outcome of one check
type CheckResult struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Report is what the health tool returns
type Report struct {
	Status  Overall                `json:"status"`
	Message string                 `json:"message"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// Prober performs a minimal live call against the agent endpoint
type Prober interface {
	Probe(ctx context.Context, token string) error
	EndpointName() string
}

// Aggregator runs the health checks and rolls them up into one report
type Aggregator struct {
	cfg      *config.Config
	tokens   auth.TokenSource
	identity workspace.IdentityResolver
	prober   Prober
	logger   *log.Logger
	now      func() time.Time

	identityTimeout time.Duration
	serverStats     func() map[string]any
}

// NewAggregator creates an aggregator. The logger may be nil.
func NewAggregator(cfg *config.Config, tokens auth.TokenSource, identity workspace.IdentityResolver, prober Prober, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Aggregator{
		cfg:      cfg,
		tokens:   tokens,
		identity: identity,
		prober:   prober,
		logger:   logger,
		now:      time.Now,

		identityTimeout: IdentityTimeout,
	}
}

// SetServerStats installs a source of runtime counters reported in the
// details of the server check.
func (a *Aggregator) SetServerStats(fn func() map[string]any) {
	a.serverStats = fn
}

// Fast returns the report of a shallow check. It touches nothing.
func Fast() Report {
	return Report{Status: Healthy, Message: msgRunning}
}

// Run builds the health report. Without deep only the fast report is
// returned and no credential or network call is made.
func (a *Aggregator) Run(ctx context.Context, deep bool) Report {
	if !deep {
		return Fast()
	}

	checks := make(map[string]CheckResult, len(CheckNames))
	checks[CheckServer] = CheckResult{Status: StatusOK, Message: msgRunning}
	if a.serverStats != nil {
		checks[CheckServer] = CheckResult{Status: StatusOK, Message: msgRunning, Details: a.serverStats()}
	}

	token, hasToken, tokenErr := a.tokens.UserToken(ctx)
	checks[CheckOBOToken] = a.checkToken(token, hasToken, tokenErr)
	checks[CheckUserAuth] = a.checkUserAuth(ctx, hasToken)

	configured := a.checkConfig()
	checks[CheckAgentConfig] = configured

	switch {
	case !hasToken:
		checks[CheckAgentConnectivity] = CheckResult{
			Status:  StatusSkipped,
			Message: "Skipped: no delegated user token available.",
		}
	case configured.Status != StatusOK:
		checks[CheckAgentConnectivity] = CheckResult{
			Status:  StatusSkipped,
			Message: "Skipped: agent configuration is incomplete.",
		}
	default:
		checks[CheckAgentConnectivity] = a.checkConnectivity(ctx, token)
	}

	report := Rollup(checks)
	a.logger.Printf("[HEALTH] status=%s checks=%s", report.Status, summary(checks))
	return report
}

// Rollup derives the overall status: any error is unhealthy, otherwise any
// warning is degraded.
func Rollup(checks map[string]CheckResult) Report {
	overall := Healthy
	for _, check := range checks {
		switch check.Status {
		case StatusError:
			overall = Unhealthy
		case StatusWarning:
			if overall == Healthy {
				overall = Degraded
			}
		}
	}

	report := Report{Status: overall, Checks: checks}
	switch overall {
	case Unhealthy:
		report.Message = msgUnhealthy
	case Degraded:
		report.Message = msgDegraded
	default:
		report.Message = msgHealthy
	}
	return report
}

func (a *Aggregator) checkToken(token string, ok bool, err error) CheckResult {
	if err != nil {
		return CheckResult{
			Status:  StatusWarning,
			Message: "Delegated user token could not be resolved.",
			Details: map[string]any{
				"error":  err.Error(),
				"header": a.cfg.TokenHeader,
			},
		}
	}
	if !ok {
		return CheckResult{
			Status:  StatusWarning,
			Message: "No delegated user token. Expected when running locally or when user authorization is not enabled for the app.",
			Details: map[string]any{"hosted": a.cfg.Hosted},
		}
	}

	return CheckResult{
		Status:  StatusOK,
		Message: "Delegated user token present.",
		Details: map[string]any{"token": auth.Inspect(token, a.now())},
	}
}

func (a *Aggregator) checkUserAuth(ctx context.Context, hasToken bool) CheckResult {
	if a.identityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.identityTimeout)
		defer cancel()
	}

	identity, err := a.identity.CurrentUser(ctx)
	if err == nil {
		return CheckResult{
			Status:  StatusOK,
			Message: fmt.Sprintf("Authenticated as %s.", identity.UserName),
			Details: map[string]any{
				"display_name": identity.DisplayName,
				"user_name":    identity.UserName,
				"active":       identity.Active,
			},
		}
	}

	result := CheckResult{
		Status:  StatusError,
		Message: "Failed to resolve the workspace identity.",
		Details: map[string]any{"error": err.Error()},
	}
	if !hasToken || tokenRelated(err) {
		result.Status = StatusWarning
		result.Message = "Workspace identity unavailable without a delegated user token."
	}
	return result
}

// tokenRelated reports whether an identity failure is plausibly caused by
// delegation being disabled rather than a real fault.
func tokenRelated(err error) bool {
	if clierrors.IsType(err, clierrors.ErrorTypeAuth) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "token") || strings.Contains(msg, "unauthorized")
}

func (a *Aggregator) checkConfig() CheckResult {
	missing := a.cfg.MissingAgentSettings()
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusError,
			Message: fmt.Sprintf("Missing required configuration: %s", strings.Join(missing, ", ")),
			Details: map[string]any{"missing": missing},
		}
	}

	return CheckResult{
		Status:  StatusOK,
		Message: fmt.Sprintf("Agent endpoint '%s' configured.", a.cfg.AgentEndpointName),
		Details: map[string]any{
			"workspace_url": a.cfg.WorkspaceURL,
			"endpoint_name": a.cfg.AgentEndpointName,
		},
	}
}

func (a *Aggregator) checkConnectivity(ctx context.Context, token string) CheckResult {
	endpoint := a.prober.EndpointName()
	err := a.prober.Probe(ctx, token)
	if err == nil {
		return CheckResult{
			Status:  StatusOK,
			Message: fmt.Sprintf("Agent endpoint '%s' responded.", endpoint),
		}
	}

	a.logger.Printf("[HEALTH] probe endpoint=%s error=%v", endpoint, err)

	switch clierrors.StatusCode(err) {
	case http.StatusUnauthorized:
		return CheckResult{
			Status: StatusWarning,
			Message: "Agent endpoint rejected the delegated token (401). Either user authorization is not " +
				"enabled for the app or the user lacks Can Query permission on the endpoint.",
			Details: map[string]any{
				"status_code": http.StatusUnauthorized,
				"possible_causes": []string{
					"user authorization (OBO) is not enabled for the app or the serving scope is missing",
					"the user does not have Can Query permission on the endpoint",
				},
			},
		}
	case http.StatusNotFound:
		return CheckResult{
			Status:  StatusError,
			Message: fmt.Sprintf("Endpoint '%s' not found or not accessible.", endpoint),
			Details: map[string]any{"status_code": http.StatusNotFound},
		}
	}

	return CheckResult{
		Status:  StatusError,
		Message: err.Error(),
	}
}

func summary(checks map[string]CheckResult) string {
	parts := make([]string, 0, len(CheckNames))
	for _, name := range CheckNames {
		if check, ok := checks[name]; ok {
			parts = append(parts, name+"="+string(check.Status))
		}
	}
	return strings.Join(parts, ",")
}
