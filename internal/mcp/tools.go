package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kubiyabot/databricks-mcp/internal/agent"
	"github.com/kubiyabot/databricks-mcp/internal/mcp/middleware"
)

const msgUserInfoFailed = "Failed to retrieve user information"

// toolFunc produces the JSON payload of a tool. The error is only reported
// to hooks; it never reaches the caller.
type toolFunc func(ctx context.Context, req mcp.CallToolRequest) (payload any, failure error)

// errorPayload is the shape of every failed tool result
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) registerTools() error {
	s.addTool(mcp.NewTool(ToolHealth,
		mcp.WithDescription(healthDescription),
		mcp.WithBoolean("deep",
			mcp.Description("Run the full set of checks, including a live call to the agent endpoint"),
			mcp.DefaultBool(false),
		),
	), s.healthTool)

	s.addTool(mcp.NewTool(ToolGetCurrentUser,
		mcp.WithDescription(currentUserDescription),
	), s.currentUserTool)

	description, err := renderAskDescription("agent", s.cfg.AgentEndpointName, s.cfg.AgentDescription)
	if err != nil {
		return err
	}
	s.addTool(mcp.NewTool(ToolAskAgent,
		mcp.WithDescription(description),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The question or message to send to the agent")),
	), s.askTool(s.agent))

	if s.supervisor == nil {
		return nil
	}

	description, err = renderAskDescription("multi-agent supervisor", s.supervisor.EndpointName(), s.cfg.SupervisorDescription)
	if err != nil {
		return err
	}
	s.addTool(mcp.NewTool(ToolAskSupervisor,
		mcp.WithDescription(description),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The question or message to send to the supervisor")),
	), s.askTool(s.supervisor))

	return nil
}

// addTool wraps fn with hooks and the middleware chain and registers it
func (s *Server) addTool(tool mcp.Tool, fn toolFunc) {
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		payload, failure := fn(ctx, req)
		s.hooks.OnToolCall(ctx, middleware.SessionID(ctx), req.Params.Name, time.Since(start), failure)

		return jsonResult(payload)
	}

	s.mcpServer.AddTool(tool, s.middlewareChain(handler))
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) healthTool(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	report := s.health.Run(ctx, req.GetBool("deep", false))
	return report, nil
}

func (s *Server) currentUserTool(ctx context.Context, req mcp.CallToolRequest) (any, error) {
	identity, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return errorPayload{Error: err.Error(), Message: msgUserInfoFailed}, err
	}
	return identity, nil
}

func (s *Server) askTool(invoker *agent.Invoker) toolFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		result := invoker.Ask(ctx, req.GetString("prompt", ""))
		if result.Failed() {
			return result, errors.New(result.Error)
		}
		return result, nil
	}
}
