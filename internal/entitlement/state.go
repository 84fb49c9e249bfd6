package entitlement

import (
	"time"

	"vidloader/internal/quota"
)

// State is the gate's top level state
type State string

const (
	StateUnknown  State = "unknown"
	StateChecking State = "checking"
	StatePro      State = "pro"
	StateFree     State = "free"
)

// FreeState refines StateFree
type FreeState string

const (
	FreeUnderQuota    FreeState = "under_quota"
	FreeQuotaExceeded FreeState = "quota_exceeded"
)

// Tier is the entitlement a download runs under
type Tier string

const (
	TierPro  Tier = "pro"
	TierFree Tier = "free"
)

// Decision is the answer to "may I download now?". Limit and Remaining are
// -1 for Pro.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Tier      Tier   `json:"tier"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

func proDecision() Decision {
	return Decision{Allowed: true, Tier: TierPro, Limit: -1, Remaining: -1}
}

func freeDecision(usage quota.Usage, limit int) Decision {
	if usage.Limit == 0 {
		usage.Limit = limit
	}
	return Decision{
		Allowed:   !usage.Exhausted(),
		Tier:      TierFree,
		Used:      usage.Count,
		Limit:     usage.Limit,
		Remaining: usage.Remaining(),
	}
}

// Status is the report behind the --license command and GET /api/license
type Status struct {
	State       State        `json:"state"`
	FreeState   FreeState    `json:"free_state,omitempty"`
	Tier        Tier         `json:"tier"`
	LicenseKey  string       `json:"license_key,omitempty"`
	Email       string       `json:"email,omitempty"`
	PlanTier    string       `json:"plan_tier,omitempty"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	ReasonKind  string       `json:"reason_kind,omitempty"`
	Quota       *quota.Usage `json:"quota,omitempty"`
	Remaining   int          `json:"remaining_today"`
}
