package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	donormodels "curaledger/internal/donation/models"
	"curaledger/internal/donation/service"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/httputil"
	"curaledger/pkg/requestcontext"
)

// Service defines the donation operations exposed over HTTP.
type Service interface {
	RecordDonation(ctx context.Context, actor domain.Actor, req service.DonateRequest) (*service.Result, error)
	RecognizeDonor(ctx context.Context, actor domain.Actor, donorID domain.ActorID, caseID domain.CaseID, label string) (*donormodels.Recognition, error)
	GetDonor(ctx context.Context, donorID domain.ActorID) (*donormodels.Donor, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts donation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/cases/{caseID}/donations", h.HandleDonate)
	r.Get("/donors/{donorID}", h.HandleGetDonor)
	r.Post("/donors/{donorID}/recognitions", h.HandleRecognize)
}

// DonateRequest is the body of POST /cases/{caseID}/donations.
type DonateRequest struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`

	parsedAsset domain.AssetID
}

func (r *DonateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be greater than zero")
	}
	asset, err := domain.ParseAssetID(r.Asset)
	if err != nil {
		return err
	}
	r.parsedAsset = asset
	return nil
}

// RecognizeRequest is the body of POST /donors/{donorID}/recognitions.
type RecognizeRequest struct {
	CaseID string `json:"case_id"`
	Label  string `json:"label"`

	parsedCase domain.CaseID
}

func (r *RecognizeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	id, err := domain.ParseCaseID(r.CaseID)
	if err != nil {
		return err
	}
	r.parsedCase = id
	label, err := donormodels.NormalizeLabel(r.Label)
	if err != nil {
		return err
	}
	r.Label = label
	return nil
}

type donateResponse struct {
	*service.Result
	DonorError string `json:"donor_error,omitempty"`
}

func (h *Handler) HandleDonate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caseID, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DonateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	actor := requestcontext.Actor(ctx)
	res, err := h.service.RecordDonation(ctx, actor, service.DonateRequest{
		CaseID: caseID,
		Asset:  req.parsedAsset,
		Amount: req.Amount,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "donation rejected",
			"request_id", requestID,
			"case_id", caseID,
			"donor", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := donateResponse{Result: res}
	if res.DonorErr != nil {
		resp.DonorError = dErrors.MessageOf(res.DonorErr)
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) HandleGetDonor(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseActorID(chi.URLParam(r, "donorID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.GetDonor(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	donorID, err := domain.ParseActorID(chi.URLParam(r, "donorID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecognizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec, err := h.service.RecognizeDonor(ctx, requestcontext.Actor(ctx), donorID, req.parsedCase, req.Label)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}
