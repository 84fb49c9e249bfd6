package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"vidloader/internal/config"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/infrastructure"
	customMiddleware "vidloader/internal/middleware"
	handlers "vidloader/internal/transport/http"
	"vidloader/internal/validation"
)

// Application is the local status API server
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Entitlement   handlers.EntitlementService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	listener net.Listener
}

// NewApplication wires the router and HTTP server around an entitlement
// service. providers may be nil, in which case requests are not traced and
// /metrics is not served.
func NewApplication(cfg *config.Config, svc handlers.EntitlementService, providers *infrastructure.OTelProviders, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("entitlement service is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	a := &Application{
		Config:        cfg,
		Entitlement:   svc,
		Logger:        infrastructure.WithComponent(logger, "app"),
		OTelProviders: providers,
	}

	a.setupRouter()
	a.createServer()

	return a, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apperrors.NewErrorHandler(a.Logger)

	// RequestID runs first so every later middleware sees the trace id
	r.Use(customMiddleware.RequestID)

	r.Group(func(r chi.Router) {
		if a.OTelProviders != nil {
			otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
			if err != nil {
				a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
			} else {
				r.Use(otelMiddleware.Handler)
			}
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Server.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Server.RateLimit.RPS,
				a.Config.Server.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders != nil && a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	a.Router = r
}

func (a *Application) setupAPIRoutes(r chi.Router) {
	licenseHandler := handlers.NewLicenseHandler(a.Entitlement, a.Logger)
	guardStats, _ := a.Entitlement.(handlers.GuardStatsSource)
	healthHandler := handlers.NewHealthHandler(a.Logger, guardStats)

	r.Get("/healthz", healthHandler.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Mount("/license", licenseHandler.Routes())
		r.Get("/quota", licenseHandler.GetQuota)
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Router,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
	}
}

// Addr returns the address the server listens on once started, otherwise
// the configured address.
func (a *Application) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.Server.Addr
}

// Start binds the listener and serves in the background. A serve failure
// after startup calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	a.Logger.InfoContext(ctx, "Starting status API",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("address", ln.Addr().String()),
		slog.String("level", a.Config.Logging.Level))

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			if cancel != nil {
				cancel()
			}
		}
	}()

	return nil
}

// performStartupHealthCheck reports unusable state file locations. The gate
// still runs in that case, it just falls back to Free or denies downloads.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	a.Logger.DebugContext(ctx, "Checking state file locations",
		slog.String("license_file", a.Config.Paths.LicenseFile),
		slog.String("quota_file", a.Config.Paths.QuotaFile))

	if a.Config.Paths.LicenseFile == "" && a.Config.Paths.QuotaFile == "" {
		return nil
	}
	return validation.NewStateValidator(a.Logger).ValidatePaths(a.Config.Paths)
}

// Stop shuts the server down, waiting at most the configured shutdown timeout
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down status API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Shutdown complete")
	return nil
}

// Run serves until ctx is done or the process receives SIGINT or SIGTERM
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "Received shutdown signal")

	return a.Stop(context.WithoutCancel(ctx))
}

// startupTimeout bounds how long WaitReady polls /healthz
const startupTimeout = 5 * time.Second

// WaitReady polls /healthz until the server answers or the timeout passes
func (a *Application) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	url := "http://" + a.Addr() + "/healthz"
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("server did not become ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
