package entitlement

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"vidloader/internal/config"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/infrastructure"
	"vidloader/internal/license"
	"vidloader/internal/quota"
	"vidloader/internal/security"
)

const component = "entitlement"

// Config wires a Gate. Only the two paths are required.
type Config struct {
	LicensePath string
	QuotaPath   string

	// PublicKey verifies license signatures. A missing or wrong sized key
	// makes every license fail verification.
	PublicKey ed25519.PublicKey

	Fingerprinter security.Fingerprinter
	// Issuer is used by Activate. ActivateWith takes one per call.
	Issuer      license.Issuer
	Clock       func() time.Time
	LockTimeout time.Duration
	Meter       metric.Meter
	Guard       *license.AttemptGuard
}

// Gate is the entitlement facade used by the download orchestrator
type Gate struct {
	store         *license.Store
	verifier      *license.Verifier
	fingerprinter security.Fingerprinter
	issuer        license.Issuer
	guard         *license.AttemptGuard
	now           func() time.Time
	quotaPath     string
	lockTimeout   time.Duration

	licenseMetrics *license.Metrics
	quotaMetrics   *quota.Metrics

	mu        sync.Mutex
	state     State
	freeState FreeState
	record    *license.Record
	loadErr   error
	counter   *quota.Counter
}

// New creates a gate. The license is not read until the first call that
// needs it.
func New(cfg Config) (*Gate, error) {
	if cfg.LicensePath == "" {
		return nil, fmt.Errorf("license path is required")
	}
	if cfg.QuotaPath == "" {
		return nil, fmt.Errorf("quota path is required")
	}

	g := &Gate{
		verifier:      license.NewVerifier(cfg.PublicKey),
		fingerprinter: cfg.Fingerprinter,
		issuer:        cfg.Issuer,
		guard:         cfg.Guard,
		now:           cfg.Clock,
		quotaPath:     cfg.QuotaPath,
		lockTimeout:   cfg.LockTimeout,
		state:         StateUnknown,
	}
	if g.fingerprinter == nil {
		g.fingerprinter = security.NewFingerprintManager()
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.lockTimeout <= 0 {
		g.lockTimeout = config.DefaultLockTimeout
	}
	if g.guard == nil {
		g.guard = license.NewAttemptGuard(config.MaxActivationAttempts,
			config.ActivationLockoutDuration, config.ActivationAttemptWindow,
			license.WithGuardClock(g.now))
	}

	if cfg.Meter != nil {
		var err error
		if g.licenseMetrics, err = license.InitializeMetrics(cfg.Meter); err != nil {
			return nil, err
		}
		if g.quotaMetrics, err = quota.InitializeMetrics(cfg.Meter); err != nil {
			return nil, err
		}
	}

	if len(cfg.PublicKey) != ed25519.PublicKeySize {
		infrastructure.WithComponent(infrastructure.GetLogger(), component).Warn(
			"No valid license public key configured, licenses cannot be verified",
			slog.Int("key_size", len(cfg.PublicKey)))
	}

	g.store = license.NewStore(cfg.LicensePath, g.verifier, g.fingerprinter,
		license.WithStoreClock(g.now))
	return g, nil
}

// State returns the current state without touching the disk
func (g *Gate) State() (State, FreeState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.freeState
}

// IsPro reports whether a verified license bound to this machine is active.
// Any failure to load or verify the license means Free.
func (g *Gate) IsPro(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isProLocked(ctx)
}

func (g *Gate) isProLocked(ctx context.Context) bool {
	if g.state == StateUnknown {
		g.loadLocked(ctx)
	}
	if g.state == StatePro && g.record.IsExpired(g.now()) {
		g.logger(ctx).WarnContext(ctx, "License expired while running, reverting to Free mode",
			slog.String("license_key", license.MaskLicenseKey(g.record.LicenseKey)))
		g.downgradeLocked(apperrors.NewEntitlementError(apperrors.KindExpired, "check license", apperrors.ErrLicenseExpired))
	}
	return g.state == StatePro
}

func (g *Gate) loadLocked(ctx context.Context) {
	g.state = StateChecking

	var rec *license.Record
	_, err := g.licenseMetrics.TraceValidation(ctx, func(ctx context.Context) (bool, error) {
		var err error
		rec, err = g.store.Load(ctx)
		return err == nil, err
	})
	if err != nil {
		g.downgradeLocked(err)
		if apperrors.KindOf(err) == apperrors.KindNotActivated {
			g.logger(ctx).DebugContext(ctx, "No license activated, running in Free mode")
			return
		}
		g.licenseMetrics.RecordSecurityEvent(ctx, string(apperrors.KindOf(err)))
		g.logger(ctx).WarnContext(ctx, config.ErrMsgLicenseInvalid,
			slog.String("kind", string(apperrors.KindOf(err))),
			slog.String("error", err.Error()))
		return
	}

	g.record = rec
	g.loadErr = nil
	g.state = StatePro
	g.freeState = ""
	g.logger(ctx).InfoContext(ctx, "Pro license verified",
		slog.String("license_key", license.MaskLicenseKey(rec.LicenseKey)),
		slog.String("plan_tier", rec.PlanTier))
}

func (g *Gate) downgradeLocked(err error) {
	g.record = nil
	g.loadErr = err
	g.state = StateFree
	if g.freeState == "" {
		g.freeState = FreeUnderQuota
	}
}

// CanDownload checks whether a download may start. Pro is always allowed.
// Free is allowed while today's count is under the cap; otherwise the
// returned error carries the QuotaExceeded or ClockRollback kind. The check
// never records anything.
func (g *Gate) CanDownload(ctx context.Context) (Decision, error) {
	counter, pro, err := g.prepare(ctx)
	if pro {
		return proDecision(), nil
	}
	if err != nil {
		return denied(err, counter), err
	}

	usage, err := counter.Check(ctx)
	g.trackUsage(usage, err)
	if err != nil {
		return g.freeDenied(usage, counter, err), err
	}
	return freeDecision(usage, counter.Limit()), nil
}

// RecordDownload counts a completed download. It is a no-op for Pro and
// must only be called after the download succeeded.
func (g *Gate) RecordDownload(ctx context.Context) error {
	counter, pro, err := g.prepare(ctx)
	if pro {
		return nil
	}
	if err != nil {
		return err
	}

	usage, err := counter.Increment(ctx)
	g.trackUsage(usage, err)
	return err
}

// prepare resolves the tier and, for Free, the quota counter. The counter
// needs the machine fingerprint so it is built on first use.
func (g *Gate) prepare(ctx context.Context) (*quota.Counter, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.isProLocked(ctx) {
		return nil, true, nil
	}
	if g.counter != nil {
		return g.counter, false, nil
	}

	fp, err := g.fingerprinter.Fingerprint(ctx)
	if err != nil {
		return nil, false, apperrors.IOError("quota", fmt.Errorf("machine fingerprint: %w", err))
	}
	counter, err := quota.NewCounter(g.quotaPath, fp,
		quota.WithClock(g.now),
		quota.WithLockTimeout(g.lockTimeout),
		quota.WithMetrics(g.quotaMetrics))
	if err != nil {
		return nil, false, apperrors.IOError("quota", err)
	}
	g.counter = counter
	return counter, false, nil
}

func (g *Gate) trackUsage(usage quota.Usage, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateFree {
		return
	}
	switch {
	case apperrors.Is(err, apperrors.KindQuotaExceeded), err == nil && usage.Exhausted():
		g.freeState = FreeQuotaExceeded
	case err == nil:
		g.freeState = FreeUnderQuota
	}
}

func (g *Gate) freeDenied(usage quota.Usage, counter *quota.Counter, err error) Decision {
	d := freeDecision(usage, counter.Limit())
	d.Allowed = false
	d.Reason = string(apperrors.KindOf(err))
	return d
}

func denied(err error, counter *quota.Counter) Decision {
	d := Decision{Tier: TierFree, Limit: config.FreeDailyDownloads, Reason: string(apperrors.KindOf(err))}
	if counter != nil {
		d.Limit = counter.Limit()
	}
	return d
}

// Activate binds key to this machine using the configured issuer
func (g *Gate) Activate(ctx context.Context, key, email string) error {
	return g.ActivateWith(ctx, key, email, g.issuer)
}

// ActivateWith runs the activation sequence with issuer: validate the key
// and email, build a request for this machine, obtain a grant, verify it
// against the embedded public key and persist the record. Only a verified
// grant moves the gate to Pro.
func (g *Gate) ActivateWith(ctx context.Context, rawKey, email string, issuer license.Issuer) error {
	const op = "activate"

	return g.licenseMetrics.TraceActivation(ctx, rawKey, func(ctx context.Context) error {
		req, err := g.buildRequest(ctx, rawKey, email)
		if err != nil {
			return err
		}

		guardID := license.HashLicenseKey(string(req.Key))
		if blocked, remaining := g.guard.IsBlocked(guardID); blocked {
			g.licenseMetrics.RecordRateLimitHit(ctx)
			return apperrors.NewEntitlementError(apperrors.KindRateLimited, op,
				fmt.Errorf("%w: retry in %s", apperrors.ErrRateLimited, remaining.Round(time.Second)))
		}

		if issuer == nil {
			return apperrors.NewEntitlementError(apperrors.KindActivationRejected, op,
				fmt.Errorf("%w: no activation response provided", apperrors.ErrActivationRejected))
		}

		grant, err := issuer.Issue(ctx, req)
		if err != nil {
			g.guard.RecordFailure(ctx, guardID)
			return apperrors.NewEntitlementError(apperrors.KindActivationRejected, op,
				fmt.Errorf("%w: %v", apperrors.ErrActivationRejected, err))
		}

		rec := license.NewRecord(req, grant)
		payload, err := rec.Payload()
		if err != nil {
			g.guard.RecordFailure(ctx, guardID)
			return apperrors.NewEntitlementError(apperrors.KindSignatureInvalid, op,
				fmt.Errorf("%w: %v", apperrors.ErrSignatureInvalid, err))
		}
		if result := g.verifier.VerifyEncoded(payload, rec.Signature); result != license.VerifyValid {
			g.guard.RecordFailure(ctx, guardID)
			g.licenseMetrics.RecordSecurityEvent(ctx, "activation_signature_"+result.String())
			return apperrors.NewEntitlementError(apperrors.KindSignatureInvalid, op,
				fmt.Errorf("%w: activation response is %s", apperrors.ErrSignatureInvalid, result))
		}
		if rec.IsExpired(g.now()) {
			return apperrors.NewEntitlementError(apperrors.KindExpired, op, apperrors.ErrLicenseExpired)
		}
		if !config.IsProPlan(rec.PlanTier) {
			g.licenseMetrics.RecordSecurityEvent(ctx, "activation_plan_not_entitled")
			return apperrors.NewEntitlementError(apperrors.KindPlanNotEntitled, op,
				fmt.Errorf("%w: plan %q", apperrors.ErrPlanNotEntitled, rec.PlanTier))
		}

		g.mu.Lock()
		defer g.mu.Unlock()

		if err := g.store.Save(ctx, rec); err != nil {
			return err
		}
		g.guard.RecordSuccess(guardID)

		g.record = rec
		g.loadErr = nil
		g.state = StatePro
		g.freeState = ""
		return nil
	})
}

// ActivationGuardStats reports the state of the activation attempt guard
func (g *Gate) ActivationGuardStats() license.GuardStats {
	return g.guard.Stats()
}

// ActivationRequest returns the code a user sends to the vendor for an
// offline activation of key on this machine.
func (g *Gate) ActivationRequest(ctx context.Context, rawKey, email string) (string, error) {
	req, err := g.buildRequest(ctx, rawKey, email)
	if err != nil {
		return "", err
	}
	return license.EncodeRequest(req)
}

func (g *Gate) buildRequest(ctx context.Context, rawKey, email string) (license.Request, error) {
	key, err := license.ParseKey(rawKey)
	if err != nil {
		return license.Request{}, err
	}
	addr, err := normalizeEmail(email)
	if err != nil {
		return license.Request{}, err
	}
	machine, err := g.fingerprinter.Fingerprint(ctx)
	if err != nil {
		return license.Request{}, apperrors.IOError("activate", fmt.Errorf("machine fingerprint: %w", err))
	}
	return license.Request{Key: key, Email: addr, MachineID: machine}, nil
}

// normalizeEmail accepts a bare address and returns it trimmed
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		if err == nil {
			err = errors.New("display names are not allowed")
		}
		return "", apperrors.NewEntitlementError(apperrors.KindInvalidFormat, "activate",
			fmt.Errorf("%w: invalid email: %v", apperrors.ErrInvalidFormat, err))
	}
	return addr.Address, nil
}

// Deactivate removes the license from this machine and returns to Free
func (g *Gate) Deactivate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.Remove(ctx); err != nil {
		return err
	}
	g.downgradeLocked(apperrors.NewEntitlementError(apperrors.KindNotActivated, "deactivate", apperrors.ErrNotActivated))
	return nil
}

// Status reports the tier, the license details when Pro and today's usage
// when Free. It never records a download.
func (g *Gate) Status(ctx context.Context) Status {
	counter, pro, err := g.prepare(ctx)

	g.mu.Lock()
	st := Status{State: g.state, Tier: TierFree, Remaining: -1}
	if pro && g.record != nil {
		rec := g.record
		activated := rec.ActivatedAt
		st.Tier = TierPro
		st.LicenseKey = license.MaskLicenseKey(rec.LicenseKey)
		st.Email = rec.Email
		st.PlanTier = rec.PlanTier
		st.ActivatedAt = &activated
		st.ExpiresAt = rec.ExpiresAt
	} else if g.loadErr != nil && apperrors.KindOf(g.loadErr) != apperrors.KindNotActivated {
		st.Reason = apperrors.UserMessage(g.loadErr)
		st.ReasonKind = string(apperrors.KindOf(g.loadErr))
	}
	g.mu.Unlock()

	if pro {
		return st
	}
	if err != nil {
		st.FreeState = FreeQuotaExceeded
		st.Reason = apperrors.UserMessage(err)
		st.ReasonKind = string(apperrors.KindOf(err))
		st.Remaining = 0
		return st
	}

	usage, err := counter.Check(ctx)
	g.trackUsage(usage, err)
	st.Quota = &usage
	st.Remaining = usage.Remaining()
	st.FreeState = FreeUnderQuota
	if err != nil {
		st.FreeState = FreeQuotaExceeded
		if !apperrors.Is(err, apperrors.KindQuotaExceeded) {
			st.Remaining = 0
			st.Reason = apperrors.UserMessage(err)
			st.ReasonKind = string(apperrors.KindOf(err))
		}
	}
	return st
}

func (g *Gate) logger(ctx context.Context) *slog.Logger {
	return infrastructure.WithComponent(infrastructure.LoggerWithContext(ctx), component)
}
