// Package service records donations into verified cases and keeps the
// per-donor bookkeeping that backs recognitions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	donormodels "curaledger/internal/donation/models"
	"curaledger/internal/donation/store"
	"curaledger/internal/events"
	ledgermetrics "curaledger/internal/ledger/metrics"
	"curaledger/internal/ledger/models"
	"curaledger/internal/transfer"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/sentinel"
	"curaledger/pkg/requestcontext"
)

// CaseStore runs serialized mutations against one case.
type CaseStore interface {
	Execute(ctx context.Context, id domain.CaseID, fn func(agg *models.Aggregate) error) (*models.Aggregate, error)
}

// DonorStore persists donor records.
type DonorStore interface {
	FindByID(ctx context.Context, id domain.ActorID) (*donormodels.Donor, error)
	Mutate(ctx context.Context, id domain.ActorID, fn store.MutateFunc) (*donormodels.Donor, error)
}

type Service struct {
	cases     CaseStore
	donors    DonorStore
	executor  transfer.Executor
	policy    models.Policy
	logger    *slog.Logger
	metrics   *ledgermetrics.Metrics
	publisher events.Publisher
	tracer    trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func New(cases CaseStore, donors DonorStore, executor transfer.Executor, opts ...Option) (*Service, error) {
	if cases == nil {
		return nil, errors.New("case store is required")
	}
	if donors == nil {
		return nil, errors.New("donor store is required")
	}
	if executor == nil {
		return nil, errors.New("transfer executor is required")
	}
	s := &Service{
		cases:    cases,
		donors:   donors,
		executor: executor,
		policy:   models.DefaultPolicy(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("curaledger/donation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DonateRequest describes one contribution. Asset is domain.NativeAsset or a
// token id.
type DonateRequest struct {
	CaseID domain.CaseID
	Asset  domain.AssetID
	Amount uint64
}

// Result is the committed donation. DonorErr is set when the donation was
// recorded but the donor's own totals could not be updated.
type Result struct {
	Donation models.Donation    `json:"donation"`
	Case     *models.Case       `json:"case"`
	Escrow   *models.Escrow     `json:"escrow"`
	Donor    *donormodels.Donor `json:"donor,omitempty"`
	DonorErr error              `json:"-"`
}

// RecordDonation credits the case escrow and raised totals and moves the funds
// from the donor to the escrow account in the same unit of work. The case
// becomes funded once its raised total reaches target plus slack.
func (s *Service) RecordDonation(ctx context.Context, actor domain.Actor, req DonateRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "donation.RecordDonation",
		trace.WithAttributes(
			attribute.String("case_id", string(req.CaseID)),
			attribute.String("asset", string(req.Asset)),
		))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("record_donation", time.Since(start)) }()

	res, err := s.recordDonation(ctx, actor, req)
	if err != nil {
		s.metrics.IncrementError("record_donation", string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.IncrementDonation(string(req.Asset), req.Asset.IsNative(), req.Amount)
	s.logger.InfoContext(ctx, "donation recorded",
		"case_id", req.CaseID,
		"donor", actor.ID,
		"asset", req.Asset,
		"amount", req.Amount,
		"donation_id", res.Donation.ID,
		"funded", res.Case.Funded,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.DonationRecorded,
		CaseID:  req.CaseID,
		Actor:   actor.ID,
		Subject: res.Donation.ID.String(),
		Asset:   req.Asset,
		Amount:  req.Amount,
		Status:  string(res.Case.Status),
	})

	res.Donor, res.DonorErr = s.applyToDonor(ctx, actor.ID, req)
	if res.DonorErr != nil {
		s.metrics.IncrementDonorBookkeepingFailure()
		s.logger.WarnContext(ctx, "donor bookkeeping failed",
			"case_id", req.CaseID,
			"donor", actor.ID,
			"donation_id", res.Donation.ID,
			"request_id", requestcontext.RequestID(ctx),
			"error", res.DonorErr,
		)
	}
	return res, nil
}

func (s *Service) recordDonation(ctx context.Context, actor domain.Actor, req DonateRequest) (*Result, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if req.Asset == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "asset is required")
	}
	if req.Amount == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "donation amount must be greater than zero")
	}

	now := requestcontext.Now(ctx)
	donation := models.Donation{
		ID:        uuid.New(),
		CaseID:    req.CaseID,
		Donor:     actor.ID,
		Asset:     req.Asset,
		Amount:    req.Amount,
		DonatedAt: now,
	}
	agg, err := s.cases.Execute(ctx, req.CaseID, func(agg *models.Aggregate) error {
		c := agg.Case
		if c.Status != models.CaseStatusVerified {
			return dErrors.New(dErrors.CodeCaseNotVerified, "case is not verified")
		}
		if c.Funded {
			return dErrors.New(dErrors.CodeCaseFunded, "case is fully funded")
		}
		if !agg.Escrow.IsOpen() {
			return dErrors.New(dErrors.CodeEscrowNotFound, "case has no open escrow")
		}
		if err := agg.Escrow.Balances.Credit(req.Asset, req.Amount, s.policy.MaxTokenAssets); err != nil {
			return err
		}
		if err := c.Raised.Credit(req.Asset, req.Amount, s.policy.MaxTokenAssets); err != nil {
			return err
		}
		if err := c.MarkFundedIfReached(s.policy.FundingSlack); err != nil {
			return err
		}
		c.UpdatedAt = now
		agg.NewDonations = append(agg.NewDonations, donation)

		return s.executor.Execute(ctx, []transfer.Intent{{
			From:      string(actor.ID),
			To:        agg.Escrow.Account,
			Asset:     req.Asset,
			Amount:    req.Amount,
			CaseID:    req.CaseID,
			Reference: donation.ID.String(),
		}})
	})
	if err != nil {
		return nil, wrapCaseErr(err, "failed to record donation")
	}
	return &Result{Donation: donation, Case: agg.Case, Escrow: agg.Escrow}, nil
}

func (s *Service) applyToDonor(ctx context.Context, donorID domain.ActorID, req DonateRequest) (*donormodels.Donor, error) {
	now := requestcontext.Now(ctx)
	var listErr error
	d, err := s.donors.Mutate(ctx, donorID, func(current *donormodels.Donor) (*donormodels.Donor, error) {
		if current == nil {
			current = donormodels.NewDonor(donorID, now)
		}
		err := current.ApplyContribution(req.CaseID, req.Amount, s.policy.MaxDonorCases, now)
		switch {
		case dErrors.HasCode(err, dErrors.CodeCapacityExceeded):
			// the total is kept, only the case list entry is lost
			listErr = err
		case err != nil:
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, wrapDonorErr(err, "failed to update donor record")
	}
	return d, listErr
}

// RecognizeDonor attaches an administrator-chosen label to a donor for a case
// the donor has supported.
func (s *Service) RecognizeDonor(ctx context.Context, actor domain.Actor, donorID domain.ActorID, caseID domain.CaseID, label string) (*donormodels.Recognition, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only an administrator may recognize donors")
	}
	label, err := donormodels.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var granted donormodels.Recognition
	_, err = s.donors.Mutate(ctx, donorID, func(current *donormodels.Donor) (*donormodels.Donor, error) {
		if current == nil {
			return nil, store.ErrNotFound
		}
		r, err := current.Recognize(caseID, label, actor.ID, now)
		if err != nil {
			return nil, err
		}
		granted = r
		return current, nil
	})
	if err != nil {
		return nil, wrapDonorErr(err, "failed to recognize donor")
	}

	s.logger.InfoContext(ctx, "donor recognized",
		"case_id", caseID,
		"donor", donorID,
		"label", label,
		"actor", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.DonorRecognized,
		CaseID:  caseID,
		Actor:   actor.ID,
		Subject: string(donorID),
		Detail:  label,
	})
	return &granted, nil
}

func (s *Service) GetDonor(ctx context.Context, donorID domain.ActorID) (*donormodels.Donor, error) {
	d, err := s.donors.FindByID(ctx, donorID)
	if err != nil {
		return nil, wrapDonorErr(err, "failed to load donor")
	}
	return d, nil
}

func wrapCaseErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func wrapDonorErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "donor not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
