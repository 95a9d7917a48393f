package sentry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Options tags every event sent by this process
type Options struct {
	Release      string
	AppName      string
	WorkspaceURL string
	Endpoint     string
}

// Enabled reports whether a Sentry client is configured
func Enabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// Initialize sets up Sentry if SENTRY_DSN is provided. Without a DSN every
// helper in this package is a no-op.
func Initialize(opts Options) error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("SENTRY_ENVIRONMENT")
	if environment == "" {
		environment = "local"
		if opts.AppName != "" {
			environment = "databricks-app"
		}
	}

	sampleRate := 1.0
	if raw := os.Getenv("SENTRY_TRACES_SAMPLE_RATE"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			sampleRate = v
		}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          opts.Release,
		TracesSampleRate: sampleRate,
		Debug:            os.Getenv("SENTRY_DEBUG") == "true",
		AttachStacktrace: true,
		BeforeSend:       beforeSend(opts),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	if opts.AppName != "" {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("app", opts.AppName)
		})
	}

	return nil
}

// credentialHeaders are never sent to Sentry
var credentialHeaders = []string{"X-Forwarded-Access-Token", "Authorization", "Cookie"}

// beforeSend tags events with the deployment and strips credential headers
// in any letter case.
func beforeSend(opts Options) func(*sentry.Event, *sentry.EventHint) *sentry.Event {
	return func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
		if event.Extra == nil {
			event.Extra = map[string]interface{}{}
		}
		event.Extra["workspace_url"] = opts.WorkspaceURL
		event.Extra["agent_endpoint"] = opts.Endpoint

		if event.Request != nil {
			for name := range event.Request.Headers {
				for _, secret := range credentialHeaders {
					if strings.EqualFold(name, secret) {
						delete(event.Request.Headers, name)
					}
				}
			}
		}
		return event
	}
}

// Flush waits for all events to be sent
func Flush(timeout time.Duration) {
	if Enabled() {
		sentry.Flush(timeout)
	}
}

// StartSpan starts a new span for tracing. The span is nil when Sentry is
// not configured.
func StartSpan(ctx context.Context, operation string, opts ...sentry.SpanOption) (*sentry.Span, context.Context) {
	if !Enabled() {
		return nil, ctx
	}
	span := sentry.StartSpan(ctx, operation, opts...)
	return span, span.Context()
}

// CaptureError captures an error with additional context
func CaptureError(err error, tags map[string]string, extras map[string]interface{}) {
	if !Enabled() || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CaptureMessage captures a message with level
func CaptureMessage(message string, level sentry.Level, tags map[string]string) {
	if !Enabled() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetLevel(level)
		sentry.CaptureMessage(message)
	})
}

// CapturePanic reports a value obtained from recover()
func CapturePanic(ctx context.Context, recovered interface{}, extras map[string]interface{}) {
	if !Enabled() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CurrentHub().RecoverWithContext(ctx, recovered)
	})
}

// AddBreadcrumb adds a breadcrumb for debugging
func AddBreadcrumb(category, message string, data map[string]interface{}) {
	if Enabled() {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Category:  category,
			Message:   message,
			Level:     sentry.LevelInfo,
			Data:      data,
			Timestamp: time.Now(),
		})
	}
}

// WithTransaction runs a function within a transaction
func WithTransaction(ctx context.Context, name string, fn func(context.Context) error) error {
	if !Enabled() {
		return fn(ctx)
	}

	span := sentry.StartTransaction(ctx, name)
	defer span.Finish()

	err := fn(span.Context())
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		sentry.CaptureException(err)
	} else {
		span.Status = sentry.SpanStatusOK
	}

	return err
}
