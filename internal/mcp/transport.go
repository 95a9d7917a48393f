package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kubiyabot/databricks-mcp/internal/auth"
	"github.com/kubiyabot/databricks-mcp/internal/health"
)

const (
	// EndpointPath is where the streamable HTTP transport is mounted
	EndpointPath = "/mcp"
	// HealthzPath serves the fast health report for load balancers
	HealthzPath = "/healthz"

	shutdownTimeout = 10 * time.Second
)

// ServeStdio serves MCP over stdin/stdout until ctx is cancelled. Stdio
// carries no request headers, so no delegated token is ever available.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.Start(ctx)
	defer s.Stop(context.Background())

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(s.logger)

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler serving MCP on EndpointPath and the fast
// health report on HealthzPath. Inbound headers are captured into the
// request context so tools can read the forwarded user token.
func (s *Server) Handler() http.Handler {
	streamable := server.NewStreamableHTTPServer(s.mcpServer,
		server.WithEndpointPath(EndpointPath),
		server.WithHTTPContextFunc(auth.WithRequestHeaders),
	)

	mux := http.NewServeMux()
	mux.Handle(EndpointPath, streamable)
	mux.HandleFunc(HealthzPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health.Fast())
	})
	return mux
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	s.Start(ctx)
	defer s.Stop(context.Background())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on %s%s", addr, EndpointPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
