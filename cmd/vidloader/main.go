// Command vidloader manages the Pro license and the Free download quota on
// this computer, and can serve the local status API used by the desktop
// shell.
//
//	vidloader --activate PRO-XXXX-XXXX-XXXX --email you@example.com
//	vidloader --activate PRO-XXXX-XXXX-XXXX --email you@example.com --response BLOB
//	vidloader --license
//	vidloader --quota
//	vidloader --deactivate
//	vidloader --serve 127.0.0.1:8765
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"vidloader/internal/app"
	"vidloader/internal/config"
	"vidloader/internal/entitlement"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/infrastructure"
	"vidloader/internal/license"
)

// publicKey is the vendor's base64 Ed25519 verification key, set at build
// time with -ldflags "-X main.publicKey=...".
var publicKey string

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

type options struct {
	activate    string
	email       string
	response    string
	showLicense bool
	deactivate  bool
	showQuota   bool
	serve       string
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.activate, "activate", "", "activate Pro with license key PRO-XXXX-XXXX-XXXX")
	fs.StringVar(&opts.email, "email", "", "email address the license was sold to (with --activate)")
	fs.StringVar(&opts.response, "response", "", "activation response from the vendor (with --activate)")
	fs.BoolVar(&opts.showLicense, "license", false, "show license status")
	fs.BoolVar(&opts.deactivate, "deactivate", false, "remove the license from this computer")
	fs.BoolVar(&opts.showQuota, "quota", false, "show whether a download may start now")
	fs.StringVar(&opts.serve, "serve", "", "serve the local status API on `addr`")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		return nil, errUsage
	}

	commands := 0
	for _, set := range []bool{opts.activate != "", opts.showLicense, opts.deactivate, opts.showQuota, opts.serve != ""} {
		if set {
			commands++
		}
	}
	switch {
	case commands == 0:
		fs.Usage()
		return nil, errUsage
	case commands > 1:
		fmt.Fprintln(stderr, "choose one of --activate, --license, --deactivate, --quota, --serve")
		return nil, errUsage
	case opts.activate != "" && opts.email == "":
		fmt.Fprintln(stderr, "--activate requires --email")
		return nil, errUsage
	case opts.activate == "" && (opts.email != "" || opts.response != ""):
		fmt.Fprintln(stderr, "--email and --response are only valid with --activate")
		return nil, errUsage
	}

	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if opts.serve != "" {
		cfg.Server.Addr = opts.serve
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	providers, err := initTelemetry(cfg, opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	gate, err := newGate(cfg, providers, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	switch {
	case opts.activate != "":
		err = activate(ctx, gate, opts, stdout)
	case opts.showLicense:
		printStatus(stdout, gate.Status(ctx))
	case opts.deactivate:
		err = deactivate(ctx, gate, stdout)
	case opts.showQuota:
		err = checkQuota(ctx, gate, stdout)
	case opts.serve != "":
		err = serve(ctx, cfg, gate, providers, logger)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	if providers != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", apperrors.UserMessage(err))
		logger.DebugContext(ctx, "command failed", slog.String("error", err.Error()))
		return exitError
	}
	return exitOK
}

// initTelemetry sets up providers when telemetry is enabled. Serving always
// gets metrics so /metrics has something to scrape.
func initTelemetry(cfg *config.Config, opts *options, logger *slog.Logger) (*infrastructure.OTelProviders, error) {
	otelCfg := infrastructure.OTelConfigFrom(cfg.Telemetry)
	if opts.serve != "" && cfg.Telemetry.MetricExporter != "none" {
		otelCfg.EnableMetrics = true
	}
	if !otelCfg.EnableMetrics && !otelCfg.EnableTracing {
		return nil, nil
	}

	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	return providers, nil
}

func newGate(cfg *config.Config, providers *infrastructure.OTelProviders, logger *slog.Logger) (*entitlement.Gate, error) {
	key, err := license.ParsePublicKey(publicKey)
	if err != nil {
		logger.Debug("no usable public key in this build", slog.String("error", err.Error()))
	}

	gateCfg := entitlement.Config{
		LicensePath: cfg.Paths.LicenseFile,
		QuotaPath:   cfg.Paths.QuotaFile,
		PublicKey:   key,
		LockTimeout: cfg.Quota.LockTimeout,
	}
	if providers != nil {
		gateCfg.Meter = providers.Meter
	}
	return entitlement.New(gateCfg)
}

// activate either prints the request code to send to the vendor or, with
// --response, applies the vendor's answer.
func activate(ctx context.Context, gate *entitlement.Gate, opts *options, stdout io.Writer) error {
	if opts.response == "" {
		code, err := gate.ActivationRequest(ctx, opts.activate, opts.email)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Send this activation code to support to receive your activation response:")
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "Activation code: %s\n", code)
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "Then run: %s --activate %s --email %s --response <response>\n",
			config.AppName, opts.activate, opts.email)
		return nil
	}

	issuer, err := license.NewGrantIssuer(opts.response)
	if err != nil {
		return apperrors.NewEntitlementError(apperrors.KindActivationRejected, "activate",
			fmt.Errorf("%w: %v", apperrors.ErrActivationRejected, err))
	}
	if err := gate.ActivateWith(ctx, opts.activate, opts.email, issuer); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "License activated. Pro mode is enabled on this computer.")
	printStatus(stdout, gate.Status(ctx))
	return nil
}

func deactivate(ctx context.Context, gate *entitlement.Gate, stdout io.Writer) error {
	if err := gate.Deactivate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "License removed from this computer. Running in Free mode.")
	return nil
}

func checkQuota(ctx context.Context, gate *entitlement.Gate, stdout io.Writer) error {
	decision, err := gate.CanDownload(ctx)
	if decision.Tier == entitlement.TierPro {
		fmt.Fprintln(stdout, "Pro: unlimited downloads.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Free: %d of %d downloads left today.\n", decision.Remaining, decision.Limit)
	return nil
}

func printStatus(w io.Writer, st entitlement.Status) {
	if st.Tier == entitlement.TierPro {
		fmt.Fprintln(w, "Tier:      Pro")
		fmt.Fprintf(w, "License:   %s\n", st.LicenseKey)
		fmt.Fprintf(w, "Email:     %s\n", st.Email)
		fmt.Fprintf(w, "Plan:      %s\n", st.PlanTier)
		if st.ActivatedAt != nil {
			fmt.Fprintf(w, "Activated: %s\n", st.ActivatedAt.Local().Format("2006-01-02"))
		}
		if st.ExpiresAt != nil {
			fmt.Fprintf(w, "Expires:   %s\n", st.ExpiresAt.Local().Format("2006-01-02"))
		}
		return
	}

	fmt.Fprintln(w, "Tier:      Free")
	if st.Remaining >= 0 {
		fmt.Fprintf(w, "Downloads: %d of %d left today\n", st.Remaining, config.FreeDailyDownloads)
	}
	if st.Reason != "" {
		fmt.Fprintf(w, "Note:      %s\n", st.Reason)
	}
}

func serve(ctx context.Context, cfg *config.Config, gate *entitlement.Gate, providers *infrastructure.OTelProviders, logger *slog.Logger) error {
	application, err := app.NewApplication(cfg, gate, providers, logger)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
