package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain sentinel", ErrMachineMismatch, KindMachineMismatch},
		{"wrapped sentinel", fmt.Errorf("load: %w", ErrStoreCorrupted), KindStoreCorrupted},
		{"lock timeout is io", fmt.Errorf("quota: %w", ErrLockTimeout), KindIO},
		{"entitlement error", NewEntitlementError(KindClockRollback, "increment", ErrClockRollback), KindClockRollback},
		{"wrapped entitlement error", fmt.Errorf("gate: %w", QuotaExceeded("record", 5, 5)), KindQuotaExceeded},
		{"kind wins over cause", IOError("save", ErrStoreCorrupted), KindIO},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestEntitlementError_Unwrap(t *testing.T) {
	err := NewEntitlementError(KindSignatureInvalid, "load", ErrSignatureInvalid)

	assert.True(t, errors.Is(err, ErrSignatureInvalid))
	assert.Equal(t, "load: license signature invalid", err.Error())

	var entErr *EntitlementError
	require.True(t, errors.As(fmt.Errorf("outer: %w", err), &entErr))
	assert.Equal(t, "load", entErr.Op)
}

func TestIs(t *testing.T) {
	assert.True(t, Is(QuotaExceeded("check", 5, 5), KindQuotaExceeded))
	assert.False(t, Is(nil, KindQuotaExceeded))
	assert.False(t, Is(ErrClockRollback, KindQuotaExceeded))
}

func TestUserMessage(t *testing.T) {
	quota := UserMessage(QuotaExceeded("check", 5, 5))
	rollback := UserMessage(NewEntitlementError(KindClockRollback, "check", ErrClockRollback))

	assert.NotEqual(t, quota, rollback)
	assert.Contains(t, quota, "Upgrade to Pro")
	assert.Contains(t, quota, "5")
	assert.Contains(t, rollback, "date")
	assert.NotContains(t, rollback, "Upgrade")

	assert.Empty(t, UserMessage(nil))
	assert.Contains(t, UserMessage(ErrInvalidFormat), "PRO-XXXX-XXXX-XXXX")

	// every kind has its own message
	seen := map[string]Kind{}
	for _, s := range sentinelKinds {
		if s.kind == KindIO {
			continue
		}
		msg := UserMessage(s.err)
		prev, dup := seen[msg]
		assert.False(t, dup, "kinds %s and %s share a message", prev, s.kind)
		seen[msg] = s.kind
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid format", ErrInvalidFormat, http.StatusBadRequest, "INVALID_FORMAT"},
		{"quota exceeded", QuotaExceeded("check", 5, 5), http.StatusForbidden, "QUOTA_EXCEEDED"},
		{"clock rollback", ErrClockRollback, http.StatusForbidden, "CLOCK_ROLLBACK_SUSPECTED"},
		{"plan not entitled", ErrPlanNotEntitled, http.StatusForbidden, "PLAN_NOT_ENTITLED"},
		{"not activated", ErrNotActivated, http.StatusNotFound, ErrLicenseNotFound.ErrorCode},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"io", IOError("save", errors.New("disk full")), http.StatusServiceUnavailable, "IO_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ToAPIError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			assert.Equal(t, UserMessage(tt.err), apiErr.Message)
		})
	}

	t.Run("quota details", func(t *testing.T) {
		apiErr := ToAPIError(QuotaExceeded("check", 5, 5))
		details, ok := apiErr.Details.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 5, details["used"])
		assert.Equal(t, 5, details["limit"])
	})

	t.Run("api errors pass through", func(t *testing.T) {
		assert.Same(t, ErrNotFound, ToAPIError(ErrNotFound))
	})
}
