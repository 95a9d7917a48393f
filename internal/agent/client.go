package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	clierrors "github.com/kubiyabot/databricks-mcp/internal/errors"
)

const responsesPath = "/responses"

// maxErrorBody caps how much of an error body ends up in messages
const maxErrorBody = 512

// Reply is the outcome of a successful call. Response is nil when the body
// could not be decoded; Raw always holds the body as received.
type Reply struct {
	Response *Response
	Raw      []byte
}

// Client talks to the OpenAI-compatible responses API exposed under
// <host>/serving-endpoints.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient creates a client for the given serving endpoints base URL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, timeout, nil)
}

// NewClientWithHTTP creates a client on top of an existing http.Client
func NewClientWithHTTP(baseURL string, timeout time.Duration, hc *http.Client) *Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}

	rc.SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}

	return &Client{
		http:    rc,
		baseURL: baseURL,
	}
}

// BaseURL returns the serving endpoints base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Respond issues one responses API call on behalf of the token holder
func (c *Client) Respond(ctx context.Context, token string, req ResponsesRequest) (*Reply, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(req).
		Post(responsesPath)
	if err != nil {
		return nil, clierrors.NetworkErrorWithContext(
			fmt.Errorf("request to %s%s failed: %w", c.baseURL, responsesPath, err),
			"Check WORKSPACE_URL and network access to the workspace.",
		)
	}

	if resp.IsError() {
		return nil, clierrors.RemoteCallError(resp.StatusCode(),
			fmt.Errorf("error code: %d - %s", resp.StatusCode(), truncate(resp.String(), maxErrorBody)))
	}

	reply := &Reply{Raw: resp.Body()}
	var decoded Response
	if err := json.Unmarshal(resp.Body(), &decoded); err == nil {
		reply.Response = &decoded
	}

	return reply, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
