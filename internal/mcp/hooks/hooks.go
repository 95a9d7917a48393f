package hooks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mark3labs/mcp-go/server"

	sentryutil "github.com/kubiyabot/databricks-mcp/internal/sentry"
)

// Hooks defines lifecycle callbacks for the MCP server
type Hooks interface {
	OnServerStart(ctx context.Context)
	OnServerStop(ctx context.Context)
	OnSessionStart(ctx context.Context, sessionID string)
	OnSessionEnd(ctx context.Context, sessionID string, duration time.Duration)
	OnToolCall(ctx context.Context, sessionID, toolName string, duration time.Duration, err error)
}

// CompositeHooks allows multiple hooks to be combined
type CompositeHooks struct {
	hooks []Hooks
	mutex sync.RWMutex
}

// NewCompositeHooks creates a new composite hooks instance
func NewCompositeHooks(hooks ...Hooks) *CompositeHooks {
	return &CompositeHooks{
		hooks: hooks,
	}
}

// AddHooks adds more hooks to the composite
func (c *CompositeHooks) AddHooks(hooks ...Hooks) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.hooks = append(c.hooks, hooks...)
}

func (c *CompositeHooks) each(fn func(Hooks)) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, h := range c.hooks {
		fn(h)
	}
}

// OnServerStart is called when server starts
func (c *CompositeHooks) OnServerStart(ctx context.Context) {
	c.each(func(h Hooks) { h.OnServerStart(ctx) })
}

// OnServerStop is called when server stops
func (c *CompositeHooks) OnServerStop(ctx context.Context) {
	c.each(func(h Hooks) { h.OnServerStop(ctx) })
}

// OnSessionStart is called when a new session starts
func (c *CompositeHooks) OnSessionStart(ctx context.Context, sessionID string) {
	c.each(func(h Hooks) { h.OnSessionStart(ctx, sessionID) })
}

// OnSessionEnd is called when a session ends
func (c *CompositeHooks) OnSessionEnd(ctx context.Context, sessionID string, duration time.Duration) {
	c.each(func(h Hooks) { h.OnSessionEnd(ctx, sessionID, duration) })
}

// OnToolCall is called after a tool is executed
func (c *CompositeHooks) OnToolCall(ctx context.Context, sessionID, toolName string, duration time.Duration, err error) {
	c.each(func(h Hooks) { h.OnToolCall(ctx, sessionID, toolName, duration, err) })
}

// SessionTracker bridges the mcp-go session hooks to Hooks. It remembers
// when each session registered so the end hook can report its duration.
type SessionTracker struct {
	hooks   Hooks
	started sync.Map
	onEnd   []func(sessionID string)
}

// NewSessionTracker creates a tracker. onEnd callbacks run after a session
// is unregistered, e.g. to drop per-session rate limiters.
func NewSessionTracker(h Hooks, onEnd ...func(sessionID string)) *SessionTracker {
	return &SessionTracker{hooks: h, onEnd: onEnd}
}

// ServerHooks returns the mcp-go hooks to install with server.WithHooks
func (t *SessionTracker) ServerHooks() *server.Hooks {
	h := &server.Hooks{}
	h.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		t.started.Store(session.SessionID(), time.Now())
		t.hooks.OnSessionStart(ctx, session.SessionID())
	})
	h.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		var duration time.Duration
		if v, ok := t.started.LoadAndDelete(session.SessionID()); ok {
			duration = time.Since(v.(time.Time))
		}
		t.hooks.OnSessionEnd(ctx, session.SessionID(), duration)
		for _, fn := range t.onEnd {
			fn(session.SessionID())
		}
	})
	return h
}

// LoggingHooks provides logging for all events
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingHooks{logger: logger}
}

func (h *LoggingHooks) OnServerStart(ctx context.Context) {
	h.logger.Println("[SERVER] MCP Server starting")
}

func (h *LoggingHooks) OnServerStop(ctx context.Context) {
	h.logger.Println("[SERVER] MCP Server stopping")
}

func (h *LoggingHooks) OnSessionStart(ctx context.Context, sessionID string) {
	h.logger.Printf("[SESSION] Started: %s", sessionID)
}

func (h *LoggingHooks) OnSessionEnd(ctx context.Context, sessionID string, duration time.Duration) {
	h.logger.Printf("[SESSION] Ended: %s, duration=%v", sessionID, duration)
}

func (h *LoggingHooks) OnToolCall(ctx context.Context, sessionID, toolName string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Printf("[TOOL] Failed: session=%s tool=%s duration=%v error=%v", sessionID, toolName, duration, err)
	} else {
		h.logger.Printf("[TOOL] Success: session=%s tool=%s duration=%v", sessionID, toolName, duration)
	}
}

// SentryHooks provides Sentry integration for all events
type SentryHooks struct{}

// NewSentryHooks creates Sentry hooks
func NewSentryHooks() *SentryHooks {
	return &SentryHooks{}
}

func (h *SentryHooks) OnServerStart(ctx context.Context) {
	sentryutil.AddBreadcrumb("server", "MCP Server started", nil)
	sentryutil.CaptureMessage("MCP Server started", sentry.LevelInfo, map[string]string{
		"component": "mcp_server",
	})
}

func (h *SentryHooks) OnServerStop(ctx context.Context) {
	sentryutil.AddBreadcrumb("server", "MCP Server stopped", nil)
}

func (h *SentryHooks) OnSessionStart(ctx context.Context, sessionID string) {
	sentryutil.AddBreadcrumb("session", "Session started", map[string]interface{}{
		"session_id": sessionID,
	})
}

func (h *SentryHooks) OnSessionEnd(ctx context.Context, sessionID string, duration time.Duration) {
	sentryutil.AddBreadcrumb("session", "Session ended", map[string]interface{}{
		"session_id": sessionID,
		"duration":   duration.String(),
	})
}

func (h *SentryHooks) OnToolCall(ctx context.Context, sessionID, toolName string, duration time.Duration, err error) {
	data := map[string]interface{}{
		"session_id": sessionID,
		"tool":       toolName,
		"duration":   duration.String(),
	}

	if err != nil {
		data["error"] = err.Error()
		sentryutil.AddBreadcrumb("tool", fmt.Sprintf("Tool failed: %s", toolName), data)
	} else {
		sentryutil.AddBreadcrumb("tool", fmt.Sprintf("Tool succeeded: %s", toolName), data)
	}
}

// ToolStats is a snapshot of MetricsHooks counters
type ToolStats struct {
	Calls    int64         `json:"calls"`
	Failures int64         `json:"failures"`
	Total    time.Duration `json:"total_duration"`
}

// MetricsHooks keeps in-memory counters of sessions and tool calls
type MetricsHooks struct {
	mutex          sync.Mutex
	activeSessions map[string]struct{}
	tools          map[string]*ToolStats
	startTime      time.Time
}

// NewMetricsHooks creates metrics hooks
func NewMetricsHooks() *MetricsHooks {
	return &MetricsHooks{
		activeSessions: make(map[string]struct{}),
		tools:          make(map[string]*ToolStats),
		startTime:      time.Now(),
	}
}

func (h *MetricsHooks) OnServerStart(ctx context.Context) {
	h.mutex.Lock()
	h.startTime = time.Now()
	h.mutex.Unlock()
}

func (h *MetricsHooks) OnServerStop(ctx context.Context) {
	sentryutil.CaptureMessage("Server stopped", sentry.LevelInfo, map[string]string{
		"uptime": h.Uptime().String(),
	})
}

func (h *MetricsHooks) OnSessionStart(ctx context.Context, sessionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.activeSessions[sessionID] = struct{}{}
}

func (h *MetricsHooks) OnSessionEnd(ctx context.Context, sessionID string, duration time.Duration) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.activeSessions, sessionID)
}

func (h *MetricsHooks) OnToolCall(ctx context.Context, sessionID, toolName string, duration time.Duration, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	stats, ok := h.tools[toolName]
	if !ok {
		stats = &ToolStats{}
		h.tools[toolName] = stats
	}
	stats.Calls++
	stats.Total += duration
	if err != nil {
		stats.Failures++
	}
}

// ActiveSessions returns the current number of active sessions
func (h *MetricsHooks) ActiveSessions() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.activeSessions)
}

// Uptime returns the time since the server started
func (h *MetricsHooks) Uptime() time.Duration {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return time.Since(h.startTime)
}

// Tool returns the counters of one tool
func (h *MetricsHooks) Tool(name string) ToolStats {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stats, ok := h.tools[name]; ok {
		return *stats
	}
	return ToolStats{}
}

// Snapshot returns the counters in a form suitable for a health report
func (h *MetricsHooks) Snapshot() map[string]any {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	tools := make(map[string]ToolStats, len(h.tools))
	for name, stats := range h.tools {
		tools[name] = *stats
	}
	return map[string]any{
		"uptime":          time.Since(h.startTime).Round(time.Second).String(),
		"active_sessions": len(h.activeSessions),
		"tools":           tools,
	}
}
