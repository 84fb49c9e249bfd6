// Package app wires the entitlement gate into the local status API server
// and manages its lifecycle.
//
// Middleware order: RequestID, OpenTelemetry, StructuredLogger, Recoverer,
// SecurityHeaders, then the optional rate limiter. /metrics is served
// outside that group.
//
// Typical use:
//
//	application, err := app.NewApplication(cfg, gate, providers, logger)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
