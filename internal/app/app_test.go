package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidloader/internal/config"
	"vidloader/internal/entitlement"
	"vidloader/internal/infrastructure"
	"vidloader/internal/license"
	"vidloader/internal/security"
	"vidloader/internal/shared/testutil"
)

type testEnv struct {
	app   *Application
	keys  testutil.KeyPair
	gate  *entitlement.Gate
	clock *testutil.Clock
}

func newTestEnv(t *testing.T, providers *infrastructure.OTelProviders) *testEnv {
	t.Helper()

	licensePath, quotaPath := testutil.StatePaths(t)
	keys := testutil.NewKeyPair(t)
	clock := testutil.NewClock(time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC))

	gate, err := entitlement.New(entitlement.Config{
		LicensePath:   licensePath,
		QuotaPath:     quotaPath,
		PublicKey:     keys.Public,
		Fingerprinter: security.StaticFingerprint(testutil.MachineA),
		Clock:         clock.Now,
		LockTimeout:   time.Second,
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.RateLimit.Enabled = false

	logger, _ := testutil.NewTestLogger(t)
	application, err := NewApplication(cfg, gate, providers, logger)
	require.NoError(t, err)

	return &testEnv{app: application, keys: keys, gate: gate, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.app.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewApplicationValidation(t *testing.T) {
	_, err := NewApplication(nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewApplication(config.Default(), nil, nil, nil)
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	guard, ok := body["activation_guard"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, config.MaxActivationAttempts, guard["max_attempts"])
	assert.EqualValues(t, 0, guard["blocked"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/quota", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFreeQuotaOverAPI(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	status := decode(t, env.do(t, http.MethodGet, "/api/license", nil))
	assert.Equal(t, string(entitlement.StateFree), status["state"])

	for i := 0; i < config.FreeDailyDownloads; i++ {
		body := decode(t, env.do(t, http.MethodGet, "/api/quota", nil))
		require.Equal(t, true, body["allowed"], "download %d", i+1)
		require.NoError(t, env.gate.RecordDownload(ctx))
	}

	rec := env.do(t, http.MethodGet, "/api/quota", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["allowed"])
	assert.EqualValues(t, 0, body["remaining"])
	assert.NotEmpty(t, body["message"])

	env.clock.Advance(24 * time.Hour)
	body = decode(t, env.do(t, http.MethodGet, "/api/quota", nil))
	assert.Equal(t, true, body["allowed"])
}

func TestOfflineActivationOverAPI(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/license/request", map[string]string{
		"license_key": testutil.ValidKey,
		"email":       testutil.TestEmail,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code, _ := decode(t, rec)["request_code"].(string)
	require.NotEmpty(t, code)

	response := env.keys.GrantResponse(t, code, license.WithIssuerClock(env.clock.Now))

	rec = env.do(t, http.MethodPost, "/api/license/activate", map[string]string{
		"license_key": testutil.ValidKey,
		"email":       testutil.TestEmail,
		"response":    response,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	pro := decode(t, env.do(t, http.MethodGet, "/api/license/pro", nil))
	assert.Equal(t, true, pro["is_pro"])

	quota := decode(t, env.do(t, http.MethodGet, "/api/quota", nil))
	assert.Equal(t, true, quota["allowed"])
	assert.EqualValues(t, -1, quota["remaining"])

	rec = env.do(t, http.MethodDelete, "/api/license", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pro = decode(t, env.do(t, http.MethodGet, "/api/license/pro", nil))
	assert.Equal(t, false, pro["is_pro"])
}

func TestActivationWithoutIssuerIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/license/activate", map[string]string{
		"license_key": testutil.ValidKey,
		"email":       testutil.TestEmail,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	env := newTestEnv(t, providers)
	env.do(t, http.MethodGet, "/healthz", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, env.app.Start(ctx, cancel))
	require.NoError(t, env.app.WaitReady(ctx))
	assert.NotEqual(t, "127.0.0.1:0", env.app.Addr())

	resp, err := http.Get("http://" + env.app.Addr() + "/api/license/pro")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.app.Stop(ctx))
	assert.NoError(t, ctx.Err())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.app.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStartupHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	assert.NoError(t, env.app.performStartupHealthCheck(ctx))

	dir := t.TempDir()
	env.app.Config.Paths = config.PathsConfig{
		LicenseFile: dir,
		QuotaFile:   filepath.Join(dir, "data", "quota.json"),
	}
	assert.Error(t, env.app.performStartupHealthCheck(ctx))

	env.app.Config.Paths.LicenseFile = filepath.Join(dir, "config", "license.json")
	assert.NoError(t, env.app.performStartupHealthCheck(ctx))
}
