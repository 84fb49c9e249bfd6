package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vidloader/internal/entitlement"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/license"
	mw "vidloader/internal/middleware"
	"vidloader/internal/shared/testutil"
)

// MockEntitlementService implements EntitlementService for testing
type MockEntitlementService struct {
	mock.Mock
}

func (m *MockEntitlementService) IsPro(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockEntitlementService) Status(ctx context.Context) entitlement.Status {
	return m.Called(ctx).Get(0).(entitlement.Status)
}

func (m *MockEntitlementService) CanDownload(ctx context.Context) (entitlement.Decision, error) {
	args := m.Called(ctx)
	return args.Get(0).(entitlement.Decision), args.Error(1)
}

func (m *MockEntitlementService) Activate(ctx context.Context, key, email string) error {
	return m.Called(ctx, key, email).Error(0)
}

func (m *MockEntitlementService) ActivateWith(ctx context.Context, key, email string, issuer license.Issuer) error {
	return m.Called(ctx, key, email, issuer).Error(0)
}

func (m *MockEntitlementService) ActivationRequest(ctx context.Context, key, email string) (string, error) {
	args := m.Called(ctx, key, email)
	return args.String(0), args.Error(1)
}

func (m *MockEntitlementService) Deactivate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestRouter(t *testing.T, svc EntitlementService) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	h := NewLicenseHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Mount("/api/license", h.Routes())
	r.Get("/api/quota", h.GetQuota)
	r.Get("/healthz", NewHealthHandler(logger, nil).HealthCheck)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func proStatus() entitlement.Status {
	activated := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return entitlement.Status{
		State:       entitlement.StatePro,
		Tier:        entitlement.TierPro,
		LicenseKey:  "PRO-****-****-WXYZ",
		Email:       testutil.TestEmail,
		PlanTier:    "pro",
		ActivatedAt: &activated,
		Remaining:   -1,
	}
}

func TestLicenseHandler_GetStatus(t *testing.T) {
	svc := &MockEntitlementService{}
	svc.On("Status", mock.Anything).Return(proStatus()).Once()

	rec, body := do(t, newTestRouter(t, svc), http.MethodGet, "/api/license", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pro", body["state"])
	assert.Equal(t, "PRO-****-****-WXYZ", body["license_key"])
	assert.Equal(t, "2024-06-01T12:00:00Z", body["activated_at"])
	svc.AssertExpectations(t)
}

func TestLicenseHandler_GetPro(t *testing.T) {
	svc := &MockEntitlementService{}
	svc.On("IsPro", mock.Anything).Return(false).Once()

	rec, body := do(t, newTestRouter(t, svc), http.MethodGet, "/api/license/pro", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_pro"])
	svc.AssertExpectations(t)
}

func TestLicenseHandler_Activate(t *testing.T) {
	keys := testutil.NewKeyPair(t)
	code, err := license.EncodeRequest(license.Request{Key: testutil.ValidKey, Email: testutil.TestEmail, MachineID: testutil.MachineA})
	require.NoError(t, err)
	response := keys.GrantResponse(t, code)

	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockEntitlementService)
		wantStatus int
		check      func(*testing.T, map[string]interface{})
	}{
		{
			name: "configured issuer",
			body: `{"license_key":"PRO-ABCD-1234-WXYZ","email":"user@example.com"}`,
			setupMock: func(m *MockEntitlementService) {
				m.On("Activate", mock.Anything, testutil.ValidKey, testutil.TestEmail).Return(nil).Once()
				m.On("Status", mock.Anything).Return(proStatus()).Once()
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["success"])
				assert.NotEmpty(t, body["trace_id"])
				status := body["status"].(map[string]interface{})
				assert.Equal(t, "pro", status["tier"])
			},
		},
		{
			name: "offline response",
			body: `{"license_key":"PRO-ABCD-1234-WXYZ","email":"user@example.com","response":"` + response + `"}`,
			setupMock: func(m *MockEntitlementService) {
				m.On("ActivateWith", mock.Anything, testutil.ValidKey, testutil.TestEmail,
					mock.AnythingOfType("*license.GrantIssuer")).Return(nil).Once()
				m.On("Status", mock.Anything).Return(proStatus()).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unreadable response",
			body:       `{"license_key":"PRO-ABCD-1234-WXYZ","email":"user@example.com","response":"%%%"}`,
			setupMock:  func(m *MockEntitlementService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid key format",
			body:       `{"license_key":"FREE-ABCD","email":"user@example.com"}`,
			setupMock:  func(m *MockEntitlementService) {},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "VALIDATION_FAILED", body["error_code"])
			},
		},
		{
			name:       "missing email",
			body:       `{"license_key":"PRO-ABCD-1234-WXYZ"}`,
			setupMock:  func(m *MockEntitlementService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "signature rejected",
			body: `{"license_key":"PRO-ABCD-1234-WXYZ","email":"user@example.com"}`,
			setupMock: func(m *MockEntitlementService) {
				m.On("Activate", mock.Anything, mock.Anything, mock.Anything).Return(
					apperrors.NewEntitlementError(apperrors.KindSignatureInvalid, "activate", apperrors.ErrSignatureInvalid)).Once()
			},
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "signature_invalid", body["kind"])
				assert.Equal(t, "/errors/entitlement/signature_invalid", body["type"])
			},
		},
		{
			name: "rate limited",
			body: `{"license_key":"PRO-ABCD-1234-WXYZ","email":"user@example.com"}`,
			setupMock: func(m *MockEntitlementService) {
				m.On("Activate", mock.Anything, mock.Anything, mock.Anything).Return(
					apperrors.NewEntitlementError(apperrors.KindRateLimited, "activate", apperrors.ErrRateLimited)).Once()
			},
			wantStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockEntitlementService{}
			tt.setupMock(svc)

			rec, body := do(t, newTestRouter(t, svc), http.MethodPost, "/api/license/activate", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, body)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestLicenseHandler_RequestCode(t *testing.T) {
	svc := &MockEntitlementService{}
	svc.On("ActivationRequest", mock.Anything, testutil.ValidKey, testutil.TestEmail).Return("eyJrZXkiOiJQUk8ifQ", nil).Once()

	rec, body := do(t, newTestRouter(t, svc), http.MethodPost, "/api/license/request",
		`{"license_key":"PRO-ABCD-1234-WXYZ","email":"user@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eyJrZXkiOiJQUk8ifQ", body["request_code"])
	svc.AssertExpectations(t)
}

func TestLicenseHandler_Deactivate(t *testing.T) {
	svc := &MockEntitlementService{}
	svc.On("Deactivate", mock.Anything).Return(nil).Once()
	svc.On("Status", mock.Anything).Return(entitlement.Status{State: entitlement.StateFree, Tier: entitlement.TierFree}).Once()

	rec, body := do(t, newTestRouter(t, svc), http.MethodDelete, "/api/license", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", body["tier"])

	t.Run("io failure", func(t *testing.T) {
		svc := &MockEntitlementService{}
		svc.On("Deactivate", mock.Anything).Return(apperrors.IOError("remove license", assert.AnError)).Once()

		rec, body := do(t, newTestRouter(t, svc), http.MethodDelete, "/api/license", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "io_error", body["kind"])
	})
}

func TestLicenseHandler_GetQuota(t *testing.T) {
	tests := []struct {
		name        string
		decision    entitlement.Decision
		err         error
		wantStatus  int
		wantAllowed bool
		wantMessage string
	}{
		{
			name:        "under quota",
			decision:    entitlement.Decision{Allowed: true, Tier: entitlement.TierFree, Used: 2, Limit: 5, Remaining: 3},
			wantStatus:  http.StatusOK,
			wantAllowed: true,
		},
		{
			name:        "quota exceeded",
			decision:    entitlement.Decision{Tier: entitlement.TierFree, Used: 5, Limit: 5, Reason: "quota_exceeded"},
			err:         apperrors.QuotaExceeded("quota", 5, 5),
			wantStatus:  http.StatusOK,
			wantMessage: "Upgrade to Pro",
		},
		{
			name:        "clock rollback",
			decision:    entitlement.Decision{Tier: entitlement.TierFree, Limit: 5, Reason: "clock_rollback_suspected"},
			err:         apperrors.NewEntitlementError(apperrors.KindClockRollback, "quota", apperrors.ErrClockRollback),
			wantStatus:  http.StatusOK,
			wantMessage: "system date",
		},
		{
			name:       "lock timeout",
			decision:   entitlement.Decision{Tier: entitlement.TierFree, Limit: 5, Reason: "io_error"},
			err:        apperrors.IOError("quota", apperrors.ErrLockTimeout),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockEntitlementService{}
			svc.On("CanDownload", mock.Anything).Return(tt.decision, tt.err).Once()

			rec, body := do(t, newTestRouter(t, svc), http.MethodGet, "/api/quota", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantAllowed, body["allowed"])
				if tt.wantMessage != "" {
					assert.Contains(t, body["message"], tt.wantMessage)
				}
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	rec, body := do(t, newTestRouter(t, &MockEntitlementService{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "vidloader", body["service"])
	assert.NotContains(t, body, "activation_guard")
}

type staticGuardStats license.GuardStats

func (s staticGuardStats) ActivationGuardStats() license.GuardStats {
	return license.GuardStats(s)
}

func TestHealthHandlerGuardStats(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	h := NewHealthHandler(logger, staticGuardStats{ActiveAttempts: 2, Blocked: 1, MaxAttempts: 5})

	rec, body := do(t, http.HandlerFunc(h.HealthCheck), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	guard, ok := body["activation_guard"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, guard["active_attempts"])
	assert.EqualValues(t, 1, guard["blocked"])
	assert.EqualValues(t, 5, guard["max_attempts"])
}
