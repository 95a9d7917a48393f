package middleware

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	sentryutil "github.com/kubiyabot/databricks-mcp/internal/sentry"
)

// ToolHandler is the handler function for tools
type ToolHandler = server.ToolHandlerFunc

// Middleware is a function that wraps a ToolHandler
type Middleware func(ToolHandler) ToolHandler

// Chain chains multiple middleware together. The first middleware is the
// outermost one.
func Chain(middlewares ...Middleware) Middleware {
	return func(next ToolHandler) ToolHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

const anonymousSession = "anonymous"

// SessionID returns the MCP session of the current call. Stdio and
// stateless HTTP calls share the anonymous session.
func SessionID(ctx context.Context) string {
	if sess := server.ClientSessionFromContext(ctx); sess != nil && sess.SessionID() != "" {
		return sess.SessionID()
	}
	return anonymousSession
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the current tool call
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggingMiddleware logs all tool calls. Arguments are not logged since
// prompts may carry user data.
type LoggingMiddleware struct {
	logger *log.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *log.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingMiddleware{logger: logger}
}

// Apply applies the logging middleware
func (m *LoggingMiddleware) Apply(next ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		sessionID := SessionID(ctx)
		requestID := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)

		span, ctx := sentryutil.StartSpan(ctx, fmt.Sprintf("mcp.tool.%s", req.Params.Name))
		if span != nil {
			span.SetTag("tool.name", req.Params.Name)
			span.SetTag("session.id", sessionID)
			span.SetTag("request.id", requestID)
			defer span.Finish()
		}

		sentryutil.AddBreadcrumb("tool_call", fmt.Sprintf("Calling tool: %s", req.Params.Name), map[string]interface{}{
			"session":    sessionID,
			"request_id": requestID,
		})

		m.logger.Printf("[TOOL START] request=%s session=%s tool=%s", requestID, sessionID, req.Params.Name)

		result, err := next(ctx, req)

		duration := time.Since(start)
		failed := err != nil || (result != nil && result.IsError)

		if failed {
			m.logger.Printf("[TOOL ERROR] request=%s session=%s tool=%s duration=%v error=%v",
				requestID, sessionID, req.Params.Name, duration, err)

			if err != nil {
				sentryutil.CaptureError(err, map[string]string{
					"tool":    req.Params.Name,
					"session": sessionID,
				}, map[string]interface{}{
					"request_id": requestID,
					"duration":   duration.String(),
				})
			}

			if span != nil {
				span.Status = sentry.SpanStatusInternalError
			}
		} else {
			m.logger.Printf("[TOOL SUCCESS] request=%s session=%s tool=%s duration=%v",
				requestID, sessionID, req.Params.Name, duration)

			if span != nil {
				span.Status = sentry.SpanStatusOK
			}
		}

		return result, err
	}
}

// RateLimitMiddleware implements rate limiting per session
type RateLimitMiddleware struct {
	limiters map[string]*rate.Limiter
	mutex    sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(requestsPerSecond float64, burst int) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// getLimiter gets or creates a rate limiter for a session
func (m *RateLimitMiddleware) getLimiter(sessionID string) *rate.Limiter {
	m.mutex.RLock()
	limiter, exists := m.limiters[sessionID]
	m.mutex.RUnlock()

	if !exists {
		m.mutex.Lock()
		// Double-check after acquiring write lock
		if limiter, exists = m.limiters[sessionID]; !exists {
			limiter = rate.NewLimiter(m.rate, m.burst)
			m.limiters[sessionID] = limiter
		}
		m.mutex.Unlock()
	}

	return limiter
}

// Apply applies the rate limit middleware
func (m *RateLimitMiddleware) Apply(next ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := SessionID(ctx)

		if !m.getLimiter(sessionID).Allow() {
			sentryutil.CaptureMessage("Rate limit exceeded", sentry.LevelWarning, map[string]string{
				"session": sessionID,
				"tool":    req.Params.Name,
			})

			return mcp.NewToolResultError(fmt.Sprintf("Rate limit exceeded for session %s. Please wait before making more requests.", sessionID)), nil
		}

		return next(ctx, req)
	}
}

// Cleanup removes the limiter of a closed session
func (m *RateLimitMiddleware) Cleanup(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.limiters, sessionID)
}

// Sessions returns the number of sessions holding a limiter
func (m *RateLimitMiddleware) Sessions() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.limiters)
}

// ErrorRecoveryMiddleware recovers from panics
type ErrorRecoveryMiddleware struct {
	logger *log.Logger
}

// NewErrorRecoveryMiddleware creates error recovery middleware
func NewErrorRecoveryMiddleware(logger *log.Logger) *ErrorRecoveryMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	return &ErrorRecoveryMiddleware{logger: logger}
}

// Apply applies the error recovery middleware
func (m *ErrorRecoveryMiddleware) Apply(next ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				sessionID := SessionID(ctx)
				m.logger.Printf("[PANIC] request=%s session=%s tool=%s panic=%v",
					RequestIDFromContext(ctx), sessionID, req.Params.Name, r)

				sentryutil.CapturePanic(ctx, r, map[string]interface{}{
					"tool":    req.Params.Name,
					"session": sessionID,
				})

				result = mcp.NewToolResultError(fmt.Sprintf("Internal error occurred while executing tool %s", req.Params.Name))
				err = nil
			}
		}()

		return next(ctx, req)
	}
}

// TimeoutMiddleware adds timeout to tool execution
type TimeoutMiddleware struct {
	defaultTimeout time.Duration
	toolTimeouts   map[string]time.Duration
}

// NewTimeoutMiddleware creates timeout middleware
func NewTimeoutMiddleware(defaultTimeout time.Duration) *TimeoutMiddleware {
	return &TimeoutMiddleware{
		defaultTimeout: defaultTimeout,
		toolTimeouts:   make(map[string]time.Duration),
	}
}

// SetToolTimeout sets timeout for a specific tool. It must not be called
// once the server is serving.
func (m *TimeoutMiddleware) SetToolTimeout(toolName string, timeout time.Duration) {
	m.toolTimeouts[toolName] = timeout
}

// Timeout returns the timeout applied to a tool
func (m *TimeoutMiddleware) Timeout(toolName string) time.Duration {
	if timeout, ok := m.toolTimeouts[toolName]; ok {
		return timeout
	}
	return m.defaultTimeout
}

// Apply applies the timeout middleware
func (m *TimeoutMiddleware) Apply(next ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		timeout := m.Timeout(req.Params.Name)
		if timeout <= 0 {
			return next(ctx, req)
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type resultWrapper struct {
			result *mcp.CallToolResult
			err    error
		}
		resultChan := make(chan resultWrapper, 1)

		go func() {
			result, err := next(timeoutCtx, req)
			resultChan <- resultWrapper{result, err}
		}()

		select {
		case res := <-resultChan:
			return res.result, res.err
		case <-timeoutCtx.Done():
			sentryutil.CaptureMessage("Tool execution timeout", sentry.LevelWarning, map[string]string{
				"tool":    req.Params.Name,
				"timeout": timeout.String(),
			})
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution timed out after %v", timeout)), nil
		}
	}
}
