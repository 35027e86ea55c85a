// Package telemetry forwards reportable gateway errors to Sentry when a DSN is configured.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/TechinMama/RecipeForADisaster/internal/conf"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

var enabled atomic.Bool

// Init configures Sentry from settings and registers it as the error reporter.
// An empty DSN leaves telemetry disabled and is not an error.
func Init(settings *conf.Settings, version string, log logger.Logger) error {
	if settings == nil || settings.Telemetry.SentryDSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Telemetry.SentryDSN,
		Environment:      settings.Telemetry.Environment,
		Release:          "recipe-gateway@" + version,
		AttachStacktrace: true,
		SendDefaultPII:   false,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	enabled.Store(true)
	errors.SetReporter(Capture)
	log.Info("telemetry enabled", logger.String("environment", settings.Telemetry.Environment))
	return nil
}

// Capture sends a categorized error to Sentry with its component and context as tags.
func Capture(err *errors.EnhancedError) {
	if !enabled.Load() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", err.Component())
		scope.SetTag("category", string(err.Category()))
		ctx := make(map[string]any)
		for k, v := range err.Context() {
			ctx[k] = v
		}
		if len(ctx) > 0 {
			scope.SetContext("error", ctx)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered.
func Flush(timeout time.Duration) {
	if !enabled.Load() {
		return
	}
	sentry.Flush(timeout)
}

// Enabled reports whether Sentry was initialized.
func Enabled() bool {
	return enabled.Load()
}
