package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vidloader/internal/entitlement"
	apperrors "vidloader/internal/errors"
	"vidloader/internal/infrastructure"
	"vidloader/internal/license"
	mw "vidloader/internal/middleware"
)

const tracerName = "vidloader/http"

// EntitlementService is the part of the entitlement gate the API exposes
type EntitlementService interface {
	IsPro(ctx context.Context) bool
	Status(ctx context.Context) entitlement.Status
	CanDownload(ctx context.Context) (entitlement.Decision, error)
	Activate(ctx context.Context, key, email string) error
	ActivateWith(ctx context.Context, key, email string, issuer license.Issuer) error
	ActivationRequest(ctx context.Context, key, email string) (string, error)
	Deactivate(ctx context.Context) error
}

// LicenseHandler serves the license and quota endpoints used by the GUI
type LicenseHandler struct {
	service   EntitlementService
	validator *mw.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service EntitlementService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:   service,
		validator: mw.NewValidator(),
		errors:    apperrors.NewErrorHandler(logger),
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the body of POST /api/license/activate. Response is
// the vendor's activation response for offline activation.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,license_key"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Response   string `json:"response,omitempty" validate:"max=8192"`
}

// RequestCodeRequest is the body of POST /api/license/request
type RequestCodeRequest struct {
	LicenseKey string `json:"license_key" validate:"required,license_key"`
	Email      string `json:"email" validate:"required,email,max=254"`
}

// ActivationResponse reports a successful activation
type ActivationResponse struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message"`
	Status    entitlement.Status `json:"status"`
	TraceID   string             `json:"trace_id"`
	Timestamp time.Time          `json:"timestamp"`
}

// RequestCodeResponse carries the code the user sends to the vendor
type RequestCodeResponse struct {
	RequestCode string `json:"request_code"`
}

// ProResponse answers GET /api/license/pro
type ProResponse struct {
	IsPro bool `json:"is_pro"`
}

// QuotaResponse answers GET /api/quota
type QuotaResponse struct {
	entitlement.Decision
	Message string `json:"message,omitempty"`
}

// Routes returns the /api/license router
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", h.GetStatus)
	r.Get("/pro", h.GetPro)
	r.Post("/activate", h.Activate)
	r.Post("/request", h.RequestCode)
	r.Delete("/", h.Deactivate)
	return r
}

// GetStatus handles GET /api/license
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "license_handler.get_status")
	defer span.End()

	status := h.service.Status(ctx)
	span.SetAttributes(
		attribute.String("entitlement.state", string(status.State)),
		attribute.String("entitlement.tier", string(status.Tier)),
	)
	render.JSON(w, r, status)
}

// GetPro handles GET /api/license/pro
func (h *LicenseHandler) GetPro(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "license_handler.is_pro")
	defer span.End()

	render.JSON(w, r, ProResponse{IsPro: h.service.IsPro(ctx)})
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "license_handler.activate")
	defer span.End()

	var req ActivationRequest
	if err := h.validator.Decode(r, &req); err != nil {
		h.fail(w, r, span, err)
		return
	}

	var err error
	if req.Response != "" {
		var issuer *license.GrantIssuer
		issuer, err = license.NewGrantIssuer(req.Response)
		if err != nil {
			h.fail(w, r, span, apperrors.ErrValidation("response", "activation response is not valid"))
			return
		}
		err = h.service.ActivateWith(ctx, req.LicenseKey, req.Email, issuer)
	} else {
		err = h.service.Activate(ctx, req.LicenseKey, req.Email)
	}
	if err != nil {
		h.fail(w, r, span, err)
		return
	}

	h.logger.InfoContext(ctx, "license activated through API",
		slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
		slog.String("email", license.MaskEmail(req.Email)),
		slog.String("request_id", middleware.GetReqID(ctx)))

	render.JSON(w, r, ActivationResponse{
		Success:   true,
		Message:   "License activated successfully",
		Status:    h.service.Status(ctx),
		TraceID:   infrastructure.TraceIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
	})
}

// RequestCode handles POST /api/license/request
func (h *LicenseHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "license_handler.request_code")
	defer span.End()

	var req RequestCodeRequest
	if err := h.validator.Decode(r, &req); err != nil {
		h.fail(w, r, span, err)
		return
	}

	code, err := h.service.ActivationRequest(ctx, req.LicenseKey, req.Email)
	if err != nil {
		h.fail(w, r, span, err)
		return
	}
	render.JSON(w, r, RequestCodeResponse{RequestCode: code})
}

// Deactivate handles DELETE /api/license
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "license_handler.deactivate")
	defer span.End()

	if err := h.service.Deactivate(ctx); err != nil {
		h.fail(w, r, span, err)
		return
	}
	render.JSON(w, r, h.service.Status(ctx))
}

// GetQuota handles GET /api/quota. Quota exhaustion and clock rollback are
// answers, not failures, so they come back as 200 with the reason.
func (h *LicenseHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "license_handler.get_quota")
	defer span.End()

	decision, err := h.service.CanDownload(ctx)
	switch apperrors.KindOf(err) {
	case "", apperrors.KindQuotaExceeded, apperrors.KindClockRollback:
	default:
		h.fail(w, r, span, err)
		return
	}

	span.SetAttributes(
		attribute.Bool("quota.allowed", decision.Allowed),
		attribute.Int("quota.remaining", decision.Remaining),
	)
	render.JSON(w, r, QuotaResponse{Decision: decision, Message: apperrors.UserMessage(err)})
}

func (h *LicenseHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(r.Context(), name,
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("request_id", middleware.GetReqID(r.Context())),
		))
}

func (h *LicenseHandler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.errors.HandleError(w, r, err)
}
