package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"curaledger/internal/ledger/models"
	"curaledger/internal/voting/service"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/httputil"
	"curaledger/pkg/requestcontext"
)

// Service defines the voting operations exposed over HTTP.
type Service interface {
	CastVote(ctx context.Context, actor domain.Actor, caseID domain.CaseID, approve bool) (*service.VoteResult, error)
	Finalize(ctx context.Context, actor domain.Actor, caseID domain.CaseID) (*service.Decision, error)
	AdminOverride(ctx context.Context, actor domain.Actor, caseID domain.CaseID, decision models.CaseStatus) (*service.Decision, error)
	CloseRejectedCase(ctx context.Context, actor domain.Actor, caseID domain.CaseID) (*models.Case, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts voting endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/cases/{caseID}/votes", h.HandleVote)
	r.Post("/cases/{caseID}/finalize", h.HandleFinalize)
	r.Post("/cases/{caseID}/override", h.HandleOverride)
	r.Delete("/cases/{caseID}", h.HandleClose)
}

// VoteRequest is the body of POST /cases/{caseID}/votes. Approve is a pointer
// so a missing field is rejected rather than read as a "no" vote.
type VoteRequest struct {
	Approve *bool `json:"approve"`
}

func (r *VoteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	return nil
}

// OverrideRequest is the body of POST /cases/{caseID}/override.
type OverrideRequest struct {
	Decision string `json:"decision"`

	parsed models.CaseStatus
}

func (r *OverrideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	status := models.CaseStatus(strings.ToLower(strings.TrimSpace(r.Decision)))
	if !status.IsDecided() {
		return dErrors.New(dErrors.CodeValidation, "decision must be verified or rejected")
	}
	r.parsed = status
	return nil
}

func (h *Handler) HandleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VoteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	actor := requestcontext.Actor(ctx)
	res, err := h.service.CastVote(ctx, actor, id, *req.Approve)
	if err != nil {
		h.logger.WarnContext(ctx, "vote rejected",
			"request_id", requestID,
			"case_id", id,
			"verifier", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	decision, err := h.service.Finalize(ctx, requestcontext.Actor(ctx), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[OverrideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	actor := requestcontext.Actor(ctx)
	decision, err := h.service.AdminOverride(ctx, actor, id, req.parsed)
	if err != nil {
		h.logger.WarnContext(ctx, "override rejected",
			"request_id", requestID,
			"case_id", id,
			"actor", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.service.CloseRejectedCase(ctx, requestcontext.Actor(ctx), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (domain.CaseID, bool) {
	id, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}
