// Package service implements case submission and the read views over a case:
// lookup, status tracking and the donor-facing report.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"curaledger/internal/events"
	ledgermetrics "curaledger/internal/ledger/metrics"
	"curaledger/internal/ledger/models"
	"curaledger/internal/ledger/store"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/sentinel"
	"curaledger/pkg/requestcontext"
)

// maxIDAttempts bounds how many counter values Submit skips when a counter id
// was already taken by a caller-supplied id.
const maxIDAttempts = 5

// Store is the slice of the case store this service reads and writes.
type Store interface {
	NextCaseNumber(ctx context.Context) (uint64, error)
	CreateIfPatientAvailable(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, id domain.CaseID) (*models.Case, error)
	Load(ctx context.Context, id domain.CaseID) (*models.Aggregate, error)
	ListDonations(ctx context.Context, id domain.CaseID) ([]models.Donation, error)
}

// Registry supplies the quorum denominator for reports.
type Registry interface {
	ActiveCount(ctx context.Context) (uint64, error)
}

// ReportCache stores rendered reports. Get reports a miss with ok=false.
type ReportCache interface {
	Get(ctx context.Context, id domain.CaseID) (report *Report, ok bool, err error)
	Set(ctx context.Context, report *Report) error
}

type Service struct {
	store     Store
	registry  Registry
	policy    models.Policy
	cache     ReportCache
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

// WithReportCache enables read-through caching of reports.
func WithReportCache(c ReportCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func New(st Store, registry Registry, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("case store is required")
	}
	if registry == nil {
		return nil, errors.New("verifier registry is required")
	}
	s := &Service{
		store:    st,
		registry: registry,
		policy:   models.DefaultPolicy(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("curaledger/cases"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitRequest describes a new funding case. CaseID is optional; when empty
// the next counter value is formatted as CASE0001, CASE0002, ...
type SubmitRequest struct {
	CaseID       domain.CaseID
	Description  string
	RecordsLink  string
	TargetAmount uint64
}

// Submit opens a Pending case for the calling patient.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, req SubmitRequest) (*models.Case, error) {
	ctx, span := s.tracer.Start(ctx, "cases.Submit")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("submit", time.Since(start)) }()

	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "description is required")
	}
	if req.TargetAmount == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "target amount must be greater than zero")
	}

	now := requestcontext.Now(ctx)
	var (
		c   *models.Case
		err error
	)
	if req.CaseID != "" {
		c, err = s.create(ctx, req.CaseID, actor.ID, description, req, now)
	} else {
		for attempt := 0; attempt < maxIDAttempts; attempt++ {
			n, nerr := s.store.NextCaseNumber(ctx)
			if nerr != nil {
				return nil, dErrors.Wrap(nerr, dErrors.CodeInternal, "failed to assign case id")
			}
			c, err = s.create(ctx, domain.FormatCaseNumber(n), actor.ID, description, req, now)
			if !errors.Is(err, store.ErrCaseIDTaken) {
				break
			}
		}
	}
	if err != nil {
		s.metrics.IncrementError("submit", string(dErrors.CodeOf(translateCreateErr(err))))
		return nil, translateCreateErr(err)
	}

	span.SetAttributes(attribute.String("case_id", string(c.ID)))
	s.metrics.IncrementSubmitted()
	s.logger.InfoContext(ctx, "case submitted",
		"case_id", c.ID,
		"patient", c.Patient,
		"target_amount", c.TargetAmount,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:   events.CaseSubmitted,
		CaseID: c.ID,
		Actor:  c.Patient,
		Amount: c.TargetAmount,
		Status: string(c.Status),
	})
	return c, nil
}

func (s *Service) create(ctx context.Context, id domain.CaseID, patient domain.ActorID, description string, req SubmitRequest, now time.Time) (*models.Case, error) {
	c, err := models.NewCase(id, patient, description, strings.TrimSpace(req.RecordsLink), req.TargetAmount, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateIfPatientAvailable(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func translateCreateErr(err error) error {
	switch {
	case errors.Is(err, store.ErrPatientHasOpenCase):
		return dErrors.New(dErrors.CodeConflict, "patient already has an open case")
	case errors.Is(err, store.ErrCaseIDTaken):
		return dErrors.New(dErrors.CodeConflict, "case id already exists")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit case")
}

// Get returns the case.
func (s *Service) Get(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapCaseErr(err)
	}
	return c, nil
}

// StatusView is the lightweight status answer.
type StatusView struct {
	CaseID     domain.CaseID     `json:"case_id"`
	Status     models.CaseStatus `json:"status"`
	Funded     bool              `json:"funded"`
	LastUpdate time.Time         `json:"last_update"`
}

// TrackStatus returns the status and last update time of a case.
func (s *Service) TrackStatus(ctx context.Context, id domain.CaseID) (*StatusView, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapCaseErr(err)
	}
	return &StatusView{CaseID: c.ID, Status: c.Status, Funded: c.Funded, LastUpdate: c.UpdatedAt}, nil
}

func wrapCaseErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
}
