package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"curaledger/internal/release/service"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/httputil"
	"curaledger/pkg/requestcontext"
)

// Service defines the release operation exposed over HTTP.
type Service interface {
	Release(ctx context.Context, actor domain.Actor, req service.ReleaseRequest) (*service.Result, error)
}

// CoSignerVerifier resolves a co-signer's own bearer token to an identity.
type CoSignerVerifier interface {
	VerifyActor(token string) (domain.Actor, error)
}

type Handler struct {
	service  Service
	cosigner CoSignerVerifier
	logger   *slog.Logger
}

func New(service Service, cosigner CoSignerVerifier, logger *slog.Logger) *Handler {
	return &Handler{service: service, cosigner: cosigner, logger: logger}
}

// Register mounts release endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/cases/{caseID}/releases", h.HandleRelease)
}

// AssetItem is one entry of the optional asset list.
type AssetItem struct {
	Asset string `json:"asset"`
	Cap   uint64 `json:"cap,omitempty"`
}

// ReleaseRequest is the body of POST /cases/{caseID}/releases. Approvals are
// the co-signers' own signed tokens.
type ReleaseRequest struct {
	Recipient string      `json:"recipient"`
	Approvals []string    `json:"approvals"`
	Assets    []AssetItem `json:"assets,omitempty"`

	parsedAssets []service.AssetRequest
}

func (r *ReleaseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Recipient = strings.TrimSpace(r.Recipient)
	if r.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if len(r.Approvals) == 0 {
		return dErrors.New(dErrors.CodeUnauthorized, "co-signer approvals are required")
	}
	r.parsedAssets = make([]service.AssetRequest, 0, len(r.Assets))
	for _, item := range r.Assets {
		asset, err := domain.ParseAssetID(item.Asset)
		if err != nil {
			return err
		}
		r.parsedAssets = append(r.parsedAssets, service.AssetRequest{Asset: asset, Cap: item.Cap})
	}
	return nil
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	caseID, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReleaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	approvers := make([]domain.ActorID, 0, len(req.Approvals))
	for _, token := range req.Approvals {
		cosigner, err := h.cosigner.VerifyActor(token)
		if err != nil {
			h.logger.WarnContext(ctx, "co-signer token rejected",
				"request_id", requestID,
				"case_id", caseID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid co-signer approval"))
			return
		}
		approvers = append(approvers, cosigner.ID)
	}

	actor := requestcontext.Actor(ctx)
	res, err := h.service.Release(ctx, actor, service.ReleaseRequest{
		CaseID:    caseID,
		Approvers: approvers,
		Recipient: req.Recipient,
		Assets:    req.parsedAssets,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "release rejected",
			"request_id", requestID,
			"case_id", caseID,
			"actor", actor.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
