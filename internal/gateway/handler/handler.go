// Package handler exposes the gateway operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"biogate/internal/device"
	"biogate/internal/gateway"
	"biogate/internal/ledger"
	"biogate/internal/platform/middleware"
	"biogate/internal/possession"
	"biogate/internal/vault"
	id "biogate/pkg/domain"
	dErrors "biogate/pkg/domain-errors"
	"biogate/pkg/platform/httputil"
)

// Service defines the gateway operations the handler delegates to.
type Service interface {
	Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.RegistrationResult, error)
	AuthenticateByTemplate(ctx context.Context, req gateway.TemplateAuthRequest) (*gateway.AuthResult, error)
	StartPossessionSession(ctx context.Context, req gateway.StartPossessionRequest) (*possession.Handshake, error)
	CompletePossessionSession(ctx context.Context, sessionID id.SessionID, proof []byte) (*gateway.AuthResult, error)
	CheckRights(ctx context.Context, userID id.UserID, modality id.Modality, accessorID string) (bool, error)
	ExportUserData(ctx context.Context, userID id.UserID, accessorID string) (ledger.Export, error)
	EraseUserData(ctx context.Context, userID id.UserID, reason, accessorID string) (ledger.ErasureConfirmation, error)
}

// Handler handles the gateway endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register registers the gateway routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))

	router.Post("/register", h.handleRegister)
	router.Post("/auth/template", h.handleTemplateAuth)
	router.Post("/auth/possession/start", h.handlePossessionStart)
	router.Post("/auth/possession/complete", h.handlePossessionComplete)
	router.Get("/users/{id}/rights/{modality}", h.handleCheckRights)
	router.Get("/users/{id}/export", h.handleExport)
	router.Delete("/users/{id}", h.handleErase)

	r.Mount("/", router)
}

// accessorID identifies the calling system in the access ledger.
func accessorID(r *http.Request) string {
	if accessor := r.Header.Get("X-Accessor-ID"); accessor != "" {
		return accessor
	}
	return "api-client"
}

func requesterContext(r *http.Request) string {
	return device.FormatRequester(r.UserAgent(), r.RemoteAddr)
}

type registerRequest struct {
	UserID     string            `json:"user_id"`
	Consent    bool              `json:"consent"`
	Modalities map[string][]byte `json:"modalities"`
}

type modalitySummary struct {
	TemplateBlob vault.Blob `json:"template_blob"`
	Commitment   []byte     `json:"commitment"`
	Randomness   []byte     `json:"randomness"`
}

type registerResponse struct {
	UserID       string                     `json:"user_id"`
	Modalities   map[string]modalitySummary `json:"modalities"`
	RegisteredAt time.Time                  `json:"registered_at"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	samples := make(map[id.Modality][]byte, len(req.Modalities))
	for name, sample := range req.Modalities {
		modality, err := id.ParseModality(name)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if len(sample) == 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "biometric sample must not be empty"))
			return
		}
		samples[modality] = sample
	}

	result, err := h.svc.Register(ctx, gateway.RegisterRequest{
		UserID:           userID,
		Consent:          req.Consent,
		RequesterContext: requesterContext(r),
		Samples:          samples,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "registration rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := registerResponse{
		UserID:       result.UserID.String(),
		Modalities:   make(map[string]modalitySummary, len(result.Modalities)),
		RegisteredAt: result.RegisteredAt,
	}
	for modality, summary := range result.Modalities {
		resp.Modalities[modality.String()] = modalitySummary{
			TemplateBlob: summary.TemplateBlob,
			Commitment:   summary.Commitment,
			Randomness:   summary.Randomness,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

type templateAuthRequest struct {
	UserID   string      `json:"user_id"`
	Modality string      `json:"modality"`
	Input    []byte      `json:"input"`
	Blob     *vault.Blob `json:"blob,omitempty"`
}

type authResponse struct {
	Authenticated bool   `json:"authenticated"`
	AccessToken   string `json:"access_token,omitempty"`
}

func (h *Handler) handleTemplateAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req templateAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	modality, err := id.ParseModality(req.Modality)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Input) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "biometric input must not be empty"))
		return
	}

	result, err := h.svc.AuthenticateByTemplate(ctx, gateway.TemplateAuthRequest{
		UserID:     userID,
		Modality:   modality,
		Input:      req.Input,
		Blob:       req.Blob,
		AccessorID: accessorID(r),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "template authentication failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Authenticated: result.Authenticated,
		AccessToken:   result.AccessToken,
	})
}

type possessionStartRequest struct {
	UserID     string `json:"user_id"`
	Modality   string `json:"modality"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type possessionStartResponse struct {
	SessionID        string `json:"session_id"`
	Challenge        []byte `json:"challenge"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

func (h *Handler) handlePossessionStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req possessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	modality, err := id.ParseModality(req.Modality)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.TTLSeconds < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ttl_seconds must not be negative"))
		return
	}

	handshake, err := h.svc.StartPossessionSession(ctx, gateway.StartPossessionRequest{
		UserID:     userID,
		Modality:   modality,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
		AccessorID: accessorID(r),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "possession session rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, possessionStartResponse{
		SessionID:        handshake.SessionID.String(),
		Challenge:        handshake.Challenge,
		ExpiresInSeconds: handshake.ExpiresInSeconds,
	})
}

type possessionCompleteRequest struct {
	SessionID string `json:"session_id"`
	Proof     []byte `json:"proof"`
}

type possessionCompleteResponse struct {
	Verified    bool   `json:"verified"`
	AccessToken string `json:"access_token,omitempty"`
}

func (h *Handler) handlePossessionComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req possessionCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sessionID, err := id.ParseSessionID(req.SessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Proof) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "proof must not be empty"))
		return
	}

	result, err := h.svc.CompletePossessionSession(ctx, sessionID, req.Proof)
	if err != nil {
		h.logger.WarnContext(ctx, "possession completion failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, possessionCompleteResponse{
		Verified:    result.Authenticated,
		AccessToken: result.AccessToken,
	})
}

type rightsResponse struct {
	Granted bool `json:"granted"`
}

func (h *Handler) handleCheckRights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	modality, err := id.ParseModality(chi.URLParam(r, "modality"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	granted, err := h.svc.CheckRights(ctx, userID, modality, accessorID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rightsResponse{Granted: granted})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	export, err := h.svc.ExportUserData(ctx, userID, accessorID(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "export failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

type eraseRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleErase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req eraseRequest
	if r.Body != nil {
		// body is optional; an empty reason is recorded as such
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	confirmation, err := h.svc.EraseUserData(ctx, userID, req.Reason, accessorID(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "erasure failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
