// Package service implements the verifier registry: the administrator-managed
// set of identities whose votes count toward case verification.
package service

import (
	"context"
	"errors"
	"log/slog"

	"curaledger/internal/events"
	ledgermetrics "curaledger/internal/ledger/metrics"
	"curaledger/internal/verifier/models"
	"curaledger/internal/verifier/store"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/platform/sentinel"
	"curaledger/pkg/requestcontext"
)

// Store persists verifiers.
type Store interface {
	FindByID(ctx context.Context, id domain.ActorID) (*models.Verifier, error)
	List(ctx context.Context) ([]*models.Verifier, error)
	CountActive(ctx context.Context) (uint64, error)
	Mutate(ctx context.Context, id domain.ActorID, fn store.MutateFunc) (*models.Verifier, error)
}

// Service manages registry membership.
type Service struct {
	store     Store
	logger    *slog.Logger
	metrics   *ledgermetrics.Metrics
	publisher events.Publisher
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

func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("verifier store is required")
	}
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add registers verifierID or re-activates it if it was removed.
func (s *Service) Add(ctx context.Context, actor domain.Actor, verifierID domain.ActorID, kind string) (*models.Verifier, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if verifierID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verifier id is required")
	}
	kind, err := models.NormalizeKind(kind)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	v, err := s.store.Mutate(ctx, verifierID, func(current *models.Verifier) (*models.Verifier, error) {
		if current == nil {
			return models.NewVerifier(verifierID, kind, now)
		}
		if err := current.CanActivate(); err != nil {
			return nil, err
		}
		current.ApplyActivation(kind, now)
		return current, nil
	})
	if err != nil {
		return nil, wrapVerifierErr(err, "failed to add verifier")
	}

	s.refreshActiveGauge(ctx)
	s.logger.InfoContext(ctx, "verifier added",
		"verifier_id", v.ID,
		"kind", v.Kind,
		"actor", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.VerifierAdded,
		Actor:   actor.ID,
		Subject: string(v.ID),
		Detail:  v.Kind,
	})
	return v, nil
}

// Remove deactivates verifierID. Its past votes stay on record.
func (s *Service) Remove(ctx context.Context, actor domain.Actor, verifierID domain.ActorID) (*models.Verifier, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	v, err := s.store.Mutate(ctx, verifierID, func(current *models.Verifier) (*models.Verifier, error) {
		if current == nil {
			return nil, store.ErrNotFound
		}
		if err := current.CanDeactivate(); err != nil {
			return nil, err
		}
		current.ApplyDeactivation(now)
		return current, nil
	})
	if err != nil {
		return nil, wrapVerifierErr(err, "failed to remove verifier")
	}

	s.refreshActiveGauge(ctx)
	s.logger.InfoContext(ctx, "verifier removed",
		"verifier_id", v.ID,
		"actor", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.VerifierRemoved,
		Actor:   actor.ID,
		Subject: string(v.ID),
	})
	return v, nil
}

// IsActive reports whether verifierID may currently vote. Unknown ids are not active.
func (s *Service) IsActive(ctx context.Context, verifierID domain.ActorID) (bool, error) {
	v, err := s.store.FindByID(ctx, verifierID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up verifier")
	}
	return v.Active, nil
}

// ActiveCount is the quorum denominator.
func (s *Service) ActiveCount(ctx context.Context) (uint64, error) {
	n, err := s.store.CountActive(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count verifiers")
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, verifierID domain.ActorID) (*models.Verifier, error) {
	v, err := s.store.FindByID(ctx, verifierID)
	if err != nil {
		return nil, wrapVerifierErr(err, "failed to load verifier")
	}
	return v, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Verifier, error) {
	vs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifiers")
	}
	return vs, nil
}

func (s *Service) refreshActiveGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if n, err := s.store.CountActive(ctx); err == nil {
		s.metrics.SetActiveVerifiers(n)
	}
}

func requireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return dErrors.New(dErrors.CodeUnauthorized, "only an administrator may manage verifiers")
	}
	return nil
}

func wrapVerifierErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "verifier not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "verifier was registered concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
