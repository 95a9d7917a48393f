package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/config"
	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

// Messages returned to MCP callers
const (
	msgNoToken        = "This tool requires OBO authentication. Running locally without token."
	msgTokenFailed    = "Failed to resolve the user token"
	msgEmptyPrompt    = "Provide a non-empty prompt for the agent."
	msgNotConfigured  = "Agent endpoint is not configured. Set WORKSPACE_URL and AGENT_ENDPOINT_NAME."
	msgUnauthorized   = "Authentication failed. Check that the App has serving scopes and user has Can Query permission."
	msgQueryFailed    = "Failed to query the agent"
	msgExtractionNote = "Could not extract text from response"

	// probePrompt is the minimal round-trip used by health checks
	probePrompt = "ping"
)

// Result is the flat object returned by the ask tools. It always carries
// either Response or the Error/Message pair.
type Result struct {
	Response string `json:"response,omitempty"`
	Note     string `json:"note,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	Debug    *Debug `json:"debug,omitempty"`

	// StatusCode is the HTTP status of a rejected call, zero otherwise
	StatusCode int `json:"-"`
}

// Debug is attached to unexpected failures
type Debug struct {
	BaseURL      string `json:"base_url"`
	EndpointName string `json:"endpoint_name"`
}

// Failed reports whether the result describes an error
func (r Result) Failed() bool {
	return r.Error != ""
}

// Invoker forwards prompts to one serving endpoint using the caller's
// delegated token.
type Invoker struct {
	host     string
	endpoint string
	tokens   auth.TokenSource
	client   *Client
	logger   *log.Logger
}

// NewInvoker creates an invoker for the endpoint. The HTTP client may be nil.
func NewInvoker(host, endpoint string, tokens auth.TokenSource, client *Client, logger *log.Logger) *Invoker {
	host = config.NormalizeHost(host)
	if client == nil {
		client = NewClient(config.ServingBaseURL(host), config.DefaultAgentTimeout)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Invoker{
		host:     host,
		endpoint: endpoint,
		tokens:   tokens,
		client:   client,
		logger:   logger,
	}
}

// EndpointName returns the serving endpoint this invoker targets
func (i *Invoker) EndpointName() string {
	return i.endpoint
}

// Ask sends prompt as a single user turn and returns the agent's reply
// text. It never returns an error: every failure becomes a Result with
// Error and Message set.
func (i *Invoker) Ask(ctx context.Context, prompt string) Result {
	if strings.TrimSpace(prompt) == "" {
		return Result{Error: "prompt is required", Message: msgEmptyPrompt}
	}

	if err := i.checkConfig(); err != nil {
		return Result{Error: err.Error(), Message: msgNotConfigured}
	}

	token, ok, err := i.tokens.UserToken(ctx)
	if err != nil {
		return Result{Error: err.Error(), Message: msgTokenFailed}
	}
	if !ok {
		return Result{Error: "No OBO token available", Message: msgNoToken}
	}

	reply, err := i.client.Respond(ctx, token, NewSingleTurnRequest(i.endpoint, prompt))
	if err != nil {
		i.logger.Printf("[AGENT] endpoint=%s error=%v", i.endpoint, err)
		return i.failure(err)
	}

	if text := ExtractText(reply.Response); text != "" {
		return Result{Response: text}
	}

	raw := string(reply.Raw)
	if strings.TrimSpace(raw) == "" {
		raw = "<empty response body>"
	}
	i.logger.Printf("[AGENT] endpoint=%s returned no extractable text", i.endpoint)
	return Result{Response: raw, Note: msgExtractionNote}
}

// Probe performs one minimal round-trip with an explicit token and returns
// the raw error, so callers can classify it.
func (i *Invoker) Probe(ctx context.Context, token string) error {
	if err := i.checkConfig(); err != nil {
		return err
	}
	_, err := i.client.Respond(ctx, token, NewSingleTurnRequest(i.endpoint, probePrompt))
	return err
}

func (i *Invoker) checkConfig() error {
	var missing []string
	if i.host == "" {
		missing = append(missing, config.EnvWorkspaceURL)
	}
	if i.endpoint == "" {
		missing = append(missing, config.EnvAgentEndpointName)
	}
	if len(missing) == 0 {
		return nil
	}
	return clierrors.ConfigError(fmt.Errorf("%s is not set", strings.Join(missing, " and ")))
}

// failure maps a call error to the caller-facing result
func (i *Invoker) failure(err error) Result {
	status := clierrors.StatusCode(err)
	switch status {
	case http.StatusUnauthorized:
		return Result{Error: err.Error(), Message: msgUnauthorized, StatusCode: status}
	case http.StatusNotFound:
		return Result{
			Error:      err.Error(),
			Message:    fmt.Sprintf("Endpoint '%s' not found or not accessible.", i.endpoint),
			StatusCode: status,
		}
	}

	return Result{
		Error:      err.Error(),
		Message:    msgQueryFailed,
		StatusCode: status,
		Debug: &Debug{
			BaseURL:      i.client.BaseURL(),
			EndpointName: i.endpoint,
		},
	}
}
