package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"curaledger/internal/cases/service"
	"curaledger/internal/ledger/models"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/httputil"
	"curaledger/pkg/requestcontext"
)

// Service defines the case operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, actor domain.Actor, req service.SubmitRequest) (*models.Case, error)
	Get(ctx context.Context, id domain.CaseID) (*models.Case, error)
	TrackStatus(ctx context.Context, id domain.CaseID) (*service.StatusView, error)
	Report(ctx context.Context, id domain.CaseID) (*service.Report, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts case endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/cases", h.HandleSubmit)
	r.Get("/cases/{caseID}", h.HandleGet)
	r.Get("/cases/{caseID}/status", h.HandleStatus)
	r.Get("/cases/{caseID}/report", h.HandleReport)
}

// SubmitRequest is the body of POST /cases.
type SubmitRequest struct {
	CaseID       string `json:"case_id,omitempty"`
	Description  string `json:"description"`
	RecordsLink  string `json:"records_link,omitempty"`
	TargetAmount uint64 `json:"target_amount"`

	parsedID domain.CaseID
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Description) > 4*512 {
		return dErrors.New(dErrors.CodeValidation, "description is too long")
	}
	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return dErrors.New(dErrors.CodeValidation, "description is required")
	}
	if r.TargetAmount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "target_amount must be greater than zero")
	}
	if r.CaseID = strings.TrimSpace(r.CaseID); r.CaseID != "" {
		id, err := domain.ParseCaseID(r.CaseID)
		if err != nil {
			return err
		}
		r.parsedID = id
	}
	return nil
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	actor := requestcontext.Actor(ctx)
	c, err := h.service.Submit(ctx, actor, service.SubmitRequest{
		CaseID:       req.parsedID,
		Description:  req.Description,
		RecordsLink:  req.RecordsLink,
		TargetAmount: req.TargetAmount,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "case submission failed",
			"request_id", requestID,
			"patient", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "case submission handled",
		"request_id", requestID,
		"case_id", c.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	status, err := h.service.TrackStatus(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.service.Report(r.Context(), id)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(r.Context(), "case report failed",
				"request_id", requestcontext.RequestID(r.Context()),
				"case_id", id,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (domain.CaseID, bool) {
	id, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}
