// Package service implements the verification state machine of a case: vote
// casting, finalization after the window, the administrator override and the
// closing of provably rejected cases.
package service

import (
	"context"
	"errors"
	"log/slog"
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

// Store runs serialized mutations against one case.
type Store interface {
	Execute(ctx context.Context, id domain.CaseID, fn func(agg *models.Aggregate) error) (*models.Aggregate, error)
}

// Registry answers verifier membership questions.
type Registry interface {
	IsActive(ctx context.Context, id domain.ActorID) (bool, error)
	ActiveCount(ctx context.Context) (uint64, error)
}

type Service struct {
	store     Store
	registry  Registry
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
		tracer:   otel.Tracer("curaledger/voting"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// VoteResult describes a recorded vote and the case state after it.
type VoteResult struct {
	Vote    models.Vote  `json:"vote"`
	Case    *models.Case `json:"case"`
	Tally   Tally        `json:"tally"`
	Outcome Outcome      `json:"outcome"`
}

// CastVote records the calling verifier's vote and verifies the case as soon
// as quorum and approval are both met. A failing approval keeps the case
// pending while the window is open.
func (s *Service) CastVote(ctx context.Context, actor domain.Actor, caseID domain.CaseID, approve bool) (*VoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "voting.CastVote",
		trace.WithAttributes(attribute.String("case_id", string(caseID))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("cast_vote", time.Since(start)) }()

	res, err := s.castVote(ctx, actor, caseID, approve)
	if err != nil {
		s.metrics.IncrementError("cast_vote", string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.IncrementVote(approve)
	s.logger.InfoContext(ctx, "vote cast",
		"case_id", caseID,
		"verifier", actor.ID,
		"approve", approve,
		"yes_votes", res.Tally.Yes,
		"no_votes", res.Tally.No,
		"outcome", res.Outcome,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.VoteCast,
		CaseID:  caseID,
		Actor:   actor.ID,
		Subject: string(actor.ID),
		Status:  string(res.Case.Status),
		Detail:  voteDetail(approve),
	})
	if res.Outcome == OutcomeVerified {
		s.decided(ctx, actor, res.Case, "vote")
	}
	return res, nil
}

func (s *Service) castVote(ctx context.Context, actor domain.Actor, caseID domain.CaseID, approve bool) (*VoteResult, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	active, err := s.registry.IsActive(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, dErrors.New(dErrors.CodeNotWhitelisted, "caller is not an active verifier")
	}
	// The denominator is read before the case lock; membership changes racing a
	// vote are evaluated on the next vote or at finalization.
	activeCount, err := s.registry.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	res := &VoteResult{Outcome: OutcomePending}
	agg, err := s.store.Execute(ctx, caseID, func(agg *models.Aggregate) error {
		c := agg.Case
		if err := c.CanVote(); err != nil {
			return err
		}
		if !c.WindowOpen(now, s.policy.VerificationWindow) {
			return dErrors.New(dErrors.CodeWindowExpired, "verification window has closed")
		}
		vote, err := agg.RecordVote(actor.ID, approve, now, s.policy.MaxVotesPerCase)
		if err != nil {
			return err
		}
		res.Vote = vote

		tally, err := Evaluate(c, activeCount, s.policy)
		if err != nil {
			return err
		}
		res.Tally = tally
		if tally.Verified() {
			c.ApplyDecision(models.CaseStatusVerified, now)
			agg.OpenEscrow(now)
			res.Outcome = OutcomeVerified
		}
		return nil
	})
	if err != nil {
		return nil, wrapExecuteErr(err, "failed to record vote")
	}
	res.Case = agg.Case
	return res, nil
}

// Decision is the result of Finalize and AdminOverride.
type Decision struct {
	Case    *models.Case `json:"case"`
	Tally   *Tally       `json:"tally,omitempty"`
	Outcome Outcome      `json:"outcome"`
}

// errNoQuorum aborts the finalize unit of work without writing.
var errNoQuorum = errors.New("no quorum")

// Finalize settles a pending case once its window has closed. Anyone may call
// it. Without quorum the case stays pending and becomes eligible for the
// administrator override.
func (s *Service) Finalize(ctx context.Context, actor domain.Actor, caseID domain.CaseID) (*Decision, error) {
	ctx, span := s.tracer.Start(ctx, "voting.Finalize",
		trace.WithAttributes(attribute.String("case_id", string(caseID))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("finalize", time.Since(start)) }()

	activeCount, err := s.registry.ActiveCount(ctx)
	if err != nil {
		s.metrics.IncrementError("finalize", string(dErrors.CodeOf(err)))
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		tally    Tally
		snapshot *models.Case
	)
	agg, err := s.store.Execute(ctx, caseID, func(agg *models.Aggregate) error {
		c := agg.Case
		if err := c.CanVote(); err != nil {
			return err
		}
		if c.WindowOpen(now, s.policy.VerificationWindow) {
			return dErrors.New(dErrors.CodeValidation, "voting window still open")
		}
		t, err := Evaluate(c, activeCount, s.policy)
		if err != nil {
			return err
		}
		tally = t
		switch t.Final() {
		case OutcomeVerified:
			c.ApplyDecision(models.CaseStatusVerified, now)
			agg.OpenEscrow(now)
		case OutcomeRejected:
			c.ApplyDecision(models.CaseStatusRejected, now)
		default:
			snapshot = c.Clone()
			return errNoQuorum
		}
		return nil
	})

	decision := &Decision{Tally: &tally, Outcome: tally.Final()}
	switch {
	case errors.Is(err, errNoQuorum):
		decision.Case = snapshot
		s.logger.InfoContext(ctx, "case finalized without quorum",
			"case_id", caseID,
			"yes_votes", tally.Yes,
			"no_votes", tally.No,
			"active_verifiers", tally.Active,
			"request_id", requestcontext.RequestID(ctx),
		)
		return decision, nil
	case err != nil:
		err = wrapExecuteErr(err, "failed to finalize case")
		s.metrics.IncrementError("finalize", string(dErrors.CodeOf(err)))
		return nil, err
	}

	decision.Case = agg.Case
	s.decided(ctx, actor, agg.Case, "finalize")
	return decision, nil
}

// AdminOverride force-sets a decision once the override delay has elapsed.
// A verified case cannot be overridden.
func (s *Service) AdminOverride(ctx context.Context, actor domain.Actor, caseID domain.CaseID, decision models.CaseStatus) (*Decision, error) {
	ctx, span := s.tracer.Start(ctx, "voting.AdminOverride",
		trace.WithAttributes(attribute.String("case_id", string(caseID))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("admin_override", time.Since(start)) }()

	c, err := s.adminOverride(ctx, actor, caseID, decision)
	if err != nil {
		s.metrics.IncrementError("admin_override", string(dErrors.CodeOf(err)))
		return nil, err
	}
	s.decided(ctx, actor, c, "override")
	return &Decision{Case: c, Outcome: Outcome(c.Status)}, nil
}

func (s *Service) adminOverride(ctx context.Context, actor domain.Actor, caseID domain.CaseID, decision models.CaseStatus) (*models.Case, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only an administrator may override a case")
	}
	if !decision.IsDecided() {
		return nil, dErrors.New(dErrors.CodeValidation, "decision must be verified or rejected")
	}

	now := requestcontext.Now(ctx)
	agg, err := s.store.Execute(ctx, caseID, func(agg *models.Aggregate) error {
		c := agg.Case
		if now.Before(c.SubmittedAt.Add(s.policy.OverrideDelay)) {
			return dErrors.New(dErrors.CodeValidation, "override delay not elapsed")
		}
		if c.Status == models.CaseStatusVerified {
			return dErrors.New(dErrors.CodeCaseAlreadyDecided, "case is already verified")
		}
		if c.Status == decision {
			return dErrors.New(dErrors.CodeCaseAlreadyDecided, "case already has this decision")
		}
		c.ApplyDecision(decision, now)
		if decision == models.CaseStatusVerified {
			agg.OpenEscrow(now)
		}
		return nil
	})
	if err != nil {
		return nil, wrapExecuteErr(err, "failed to override case")
	}
	return agg.Case, nil
}

// CloseRejectedCase removes a case whose rejection can be proven from its
// tally: quorum met and approval failed against the current verifier count,
// with the case rejected or its window closed. Anyone may call it.
func (s *Service) CloseRejectedCase(ctx context.Context, actor domain.Actor, caseID domain.CaseID) (*models.Case, error) {
	ctx, span := s.tracer.Start(ctx, "voting.CloseRejectedCase",
		trace.WithAttributes(attribute.String("case_id", string(caseID))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("close_case", time.Since(start)) }()

	c, err := s.closeRejectedCase(ctx, actor, caseID)
	if err != nil {
		s.metrics.IncrementError("close_case", string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.IncrementClosed()
	s.logger.InfoContext(ctx, "case closed",
		"case_id", caseID,
		"patient", c.Patient,
		"actor", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:   events.CaseClosed,
		CaseID: caseID,
		Actor:  actor.ID,
		Status: string(c.Status),
	})
	return c, nil
}

func (s *Service) closeRejectedCase(ctx context.Context, actor domain.Actor, caseID domain.CaseID) (*models.Case, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	activeCount, err := s.registry.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	agg, err := s.store.Execute(ctx, caseID, func(agg *models.Aggregate) error {
		c := agg.Case
		if c.Status == models.CaseStatusVerified {
			return dErrors.New(dErrors.CodeCaseAlreadyDecided, "a verified case cannot be closed")
		}
		tally, err := Evaluate(c, activeCount, s.policy)
		if err != nil {
			return err
		}
		if !tally.ProvablyRejected() {
			return dErrors.New(dErrors.CodeValidation, "rejection not provable")
		}
		if c.Status != models.CaseStatusRejected && c.WindowOpen(now, s.policy.VerificationWindow) {
			return dErrors.New(dErrors.CodeValidation, "voting window still open")
		}
		agg.Closed = true
		return nil
	})
	if err != nil {
		return nil, wrapExecuteErr(err, "failed to close case")
	}
	return agg.Case, nil
}

// decided records a terminal transition.
func (s *Service) decided(ctx context.Context, actor domain.Actor, c *models.Case, path string) {
	s.metrics.IncrementDecision(string(c.Status), path)
	s.logger.InfoContext(ctx, "case decided",
		"case_id", c.ID,
		"status", c.Status,
		"path", path,
		"actor", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	eventType := events.CaseRejected
	if c.Status == models.CaseStatusVerified {
		eventType = events.CaseVerified
	}
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:   eventType,
		CaseID: c.ID,
		Actor:  actor.ID,
		Status: string(c.Status),
		Detail: path,
	})
}

func voteDetail(approve bool) string {
	if approve {
		return "approve"
	}
	return "reject"
}

func wrapExecuteErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, store.ErrPatientHasOpenCase):
		return dErrors.New(dErrors.CodeConflict, "patient already has an open case")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
