package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"vidloader/internal/config"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/files"
	"vidloader/internal/security"
)

// Record is the persisted license file.
type Record struct {
	LicenseKey  string     `json:"license_key"`
	Email       string     `json:"email"`
	MachineID   string     `json:"machine_id"`
	ActivatedAt time.Time  `json:"activated_at"`
	PlanTier    string     `json:"plan_tier"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Signature   string     `json:"signature"`
}

// NewRecord builds the record for a granted activation request.
func NewRecord(req Request, grant *Grant) *Record {
	return &Record{
		LicenseKey:  string(req.Key),
		Email:       req.Email,
		MachineID:   req.MachineID,
		ActivatedAt: grant.IssuedAt.UTC().Truncate(time.Second),
		PlanTier:    grant.PlanTier,
		ExpiresAt:   grant.ExpiresAt,
		Signature:   grant.Signature,
	}
}

// Payload reconstructs the signed payload from the record.
func (r *Record) Payload() (Payload, error) {
	key, err := ParseKey(r.LicenseKey)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Key:       key,
		Email:     r.Email,
		MachineID: r.MachineID,
		PlanTier:  r.PlanTier,
		IssuedAt:  r.ActivatedAt,
		ExpiresAt: r.ExpiresAt,
	}, nil
}

// IsExpired reports whether the record carries an expiry that has passed.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Store persists the license record and re-verifies it on every load.
type Store struct {
	path          string
	verifier      *Verifier
	fingerprinter security.Fingerprinter
	now           func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreClock overrides the clock used for expiry checks
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a license store for path.
func NewStore(path string, verifier *Verifier, fingerprinter security.Fingerprinter, opts ...StoreOption) *Store {
	s := &Store{
		path:          path,
		verifier:      verifier,
		fingerprinter: fingerprinter,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the license file location
func (s *Store) Path() string {
	return s.path
}

// Load reads, parses and verifies the license file. Every failure is
// returned as an EntitlementError; none of them means Pro.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	const op = "load license"

	data, err := files.ReadLimited(s.path, config.MaxStateFileSize)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, apperrors.NewEntitlementError(apperrors.KindNotActivated, op, apperrors.ErrNotActivated)
		case errors.Is(err, files.ErrTooLarge):
			return nil, apperrors.NewEntitlementError(apperrors.KindStoreCorrupted, op,
				fmt.Errorf("%w: %v", apperrors.ErrStoreCorrupted, err))
		default:
			return nil, apperrors.IOError(op, err)
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.NewEntitlementError(apperrors.KindStoreCorrupted, op,
			fmt.Errorf("%w: %v", apperrors.ErrStoreCorrupted, err))
	}

	payload, err := rec.Payload()
	if err != nil {
		return nil, apperrors.NewEntitlementError(apperrors.KindStoreCorrupted, op,
			fmt.Errorf("%w: %v", apperrors.ErrStoreCorrupted, err))
	}

	switch result := s.verifier.VerifyEncoded(payload, rec.Signature); result {
	case VerifyValid:
	case VerifyInvalid:
		logLicenseAction(ctx, slog.LevelWarn, "license_validation", "License signature does not verify",
			rec.LicenseKey, rec.Email)
		return nil, apperrors.NewEntitlementError(apperrors.KindSignatureInvalid, op, apperrors.ErrSignatureInvalid)
	default:
		return nil, apperrors.NewEntitlementError(apperrors.KindStoreCorrupted, op,
			fmt.Errorf("%w: signature %s", apperrors.ErrStoreCorrupted, result))
	}

	current, err := s.fingerprinter.Fingerprint(ctx)
	if err != nil {
		return nil, apperrors.NewEntitlementError(apperrors.KindMachineMismatch, op,
			fmt.Errorf("%w: %v", apperrors.ErrMachineMismatch, err))
	}
	if current != rec.MachineID {
		logLicenseAction(ctx, slog.LevelWarn, "license_validation", "License bound to a different machine",
			rec.LicenseKey, rec.Email)
		return nil, apperrors.NewEntitlementError(apperrors.KindMachineMismatch, op, apperrors.ErrMachineMismatch)
	}

	if !config.IsProPlan(rec.PlanTier) {
		logLicenseAction(ctx, slog.LevelWarn, "license_validation", "License plan does not unlock Pro",
			rec.LicenseKey, rec.Email)
		return nil, apperrors.NewEntitlementError(apperrors.KindPlanNotEntitled, op,
			fmt.Errorf("%w: plan %q", apperrors.ErrPlanNotEntitled, rec.PlanTier))
	}

	if rec.IsExpired(s.now()) {
		return nil, apperrors.NewEntitlementError(apperrors.KindExpired, op, apperrors.ErrLicenseExpired)
	}

	return &rec, nil
}

// Save writes rec atomically with owner-only permissions.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return apperrors.IOError("save license", err)
	}
	if err := files.WriteAtomic(s.path, data, 0600); err != nil {
		return apperrors.IOError("save license", err)
	}

	logLicenseAction(ctx, slog.LevelInfo, "license_saved", "License record written",
		rec.LicenseKey, rec.Email, slog.String("path", s.path))
	return nil
}

// Remove deletes the license file. A missing file is not an error.
func (s *Store) Remove(ctx context.Context) error {
	if err := files.RemoveIfExists(s.path); err != nil {
		return apperrors.IOError("remove license", err)
	}
	logInfo(ctx, "license_removed", "License record removed", slog.String("path", s.path))
	return nil
}
