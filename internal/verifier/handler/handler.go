package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"curaledger/internal/verifier/models"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/httputil"
	"curaledger/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Add(ctx context.Context, actor domain.Actor, verifierID domain.ActorID, kind string) (*models.Verifier, error)
	Remove(ctx context.Context, actor domain.Actor, verifierID domain.ActorID) (*models.Verifier, error)
	Get(ctx context.Context, verifierID domain.ActorID) (*models.Verifier, error)
	List(ctx context.Context) ([]*models.Verifier, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/verifiers", h.HandleList)
	r.Post("/verifiers", h.HandleAdd)
	r.Get("/verifiers/{verifierID}", h.HandleGet)
	r.Delete("/verifiers/{verifierID}", h.HandleRemove)
}

// AddRequest is the body of POST /verifiers.
type AddRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	parsedID domain.ActorID
}

func (r *AddRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	id, err := domain.ParseActorID(r.ID)
	if err != nil {
		return err
	}
	r.parsedID = id
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	return nil
}

type listResponse struct {
	Verifiers []*models.Verifier `json:"verifiers"`
	Active    int                `json:"active"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vs, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list verifiers failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := listResponse{Verifiers: vs}
	for _, v := range vs {
		if v.Active {
			resp.Active++
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	v, err := h.service.Add(ctx, requestcontext.Actor(ctx), req.parsedID, req.Kind)
	if err != nil {
		h.logger.WarnContext(ctx, "add verifier failed",
			"request_id", requestID,
			"verifier_id", req.parsedID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseActorID(chi.URLParam(r, "verifierID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseActorID(chi.URLParam(r, "verifierID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Remove(ctx, requestcontext.Actor(ctx), id)
	if err != nil {
		h.logger.WarnContext(ctx, "remove verifier failed",
			"request_id", requestcontext.RequestID(ctx),
			"verifier_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}
