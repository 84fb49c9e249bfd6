package license

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vidloader/internal/config"
)

// Request is what an activation asks the vendor to sign.
type Request struct {
	Key       Key    `json:"key"`
	Email     string `json:"email"`
	MachineID string `json:"machine_id"`
}

// Grant is the vendor's answer to a Request.
type Grant struct {
	IssuedAt  time.Time  `json:"issued_at"`
	PlanTier  string     `json:"plan_tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Signature string     `json:"signature"`
}

// Payload combines the request and grant into the signed payload.
func (g *Grant) Payload(req Request) Payload {
	return Payload{
		Key:       req.Key,
		Email:     req.Email,
		MachineID: req.MachineID,
		PlanTier:  g.PlanTier,
		IssuedAt:  g.IssuedAt,
		ExpiresAt: g.ExpiresAt,
	}
}

// Issuer obtains a signed grant for an activation request. The vendor
// exchange itself lives outside this package.
type Issuer interface {
	Issue(ctx context.Context, req Request) (*Grant, error)
}

// KeyIssuer signs grants with a private key. It backs the vendor tool and
// tests.
type KeyIssuer struct {
	privateKey ed25519.PrivateKey
	plan       string
	validity   time.Duration
	now        func() time.Time
}

// KeyIssuerOption configures a KeyIssuer
type KeyIssuerOption func(*KeyIssuer)

// WithPlan sets the plan tier written into grants
func WithPlan(plan string) KeyIssuerOption {
	return func(i *KeyIssuer) {
		i.plan = plan
	}
}

// WithValidity makes grants expire after d. Zero means no expiry.
func WithValidity(d time.Duration) KeyIssuerOption {
	return func(i *KeyIssuer) {
		i.validity = d
	}
}

// WithIssuerClock overrides the issue time source
func WithIssuerClock(now func() time.Time) KeyIssuerOption {
	return func(i *KeyIssuer) {
		i.now = now
	}
}

// NewKeyIssuer creates an issuer for privateKey.
func NewKeyIssuer(privateKey ed25519.PrivateKey, opts ...KeyIssuerOption) *KeyIssuer {
	i := &KeyIssuer{
		privateKey: privateKey,
		plan:       config.DefaultPlanTier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs req.
func (i *KeyIssuer) Issue(_ context.Context, req Request) (*Grant, error) {
	grant := &Grant{
		IssuedAt: i.now().UTC().Truncate(time.Second),
		PlanTier: i.plan,
	}
	if i.validity > 0 {
		expires := grant.IssuedAt.Add(i.validity)
		grant.ExpiresAt = &expires
	}

	sig, err := Sign(i.privateKey, grant.Payload(req))
	if err != nil {
		return nil, fmt.Errorf("sign activation: %w", err)
	}
	grant.Signature = base64.StdEncoding.EncodeToString(sig)
	return grant, nil
}

// GrantIssuer returns a grant the user pasted from the vendor's response.
// The signature is checked by the caller against the request it was made for.
type GrantIssuer struct {
	grant Grant
}

// NewGrantIssuer decodes a response blob.
func NewGrantIssuer(blob string) (*GrantIssuer, error) {
	grant, err := DecodeGrant(blob)
	if err != nil {
		return nil, err
	}
	return &GrantIssuer{grant: *grant}, nil
}

// Issue returns a copy of the pasted grant
func (i *GrantIssuer) Issue(context.Context, Request) (*Grant, error) {
	g := i.grant
	return &g, nil
}

// EncodeRequest turns req into a code the user can copy to the vendor.
func EncodeRequest(req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode activation request: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeRequest parses and validates an activation request code.
func DecodeRequest(code string) (Request, error) {
	var req Request
	if err := decodeBlob(code, &req); err != nil {
		return Request{}, fmt.Errorf("decode activation request: %w", err)
	}

	key, err := ParseKey(string(req.Key))
	if err != nil {
		return Request{}, err
	}
	req.Key = key

	if req.Email == "" || req.MachineID == "" {
		return Request{}, fmt.Errorf("decode activation request: %w: missing email or machine id", ErrMalformedPayload)
	}
	return req, nil
}

// EncodeGrant turns a grant into the response blob handed back to the user.
func EncodeGrant(g *Grant) (string, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode grant: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeGrant parses a response blob.
func DecodeGrant(blob string) (*Grant, error) {
	var g Grant
	if err := decodeBlob(blob, &g); err != nil {
		return nil, fmt.Errorf("decode grant: %w", err)
	}
	if g.Signature == "" || g.PlanTier == "" || g.IssuedAt.IsZero() {
		return nil, fmt.Errorf("decode grant: %w: incomplete grant", ErrMalformedPayload)
	}
	return &g, nil
}

func decodeBlob(blob string, v interface{}) error {
	blob = strings.TrimRight(strings.TrimSpace(blob), "=")
	if len(blob) > int(config.MaxStateFileSize) {
		return fmt.Errorf("blob too large")
	}
	data, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
