// Package service releases escrowed donations to a treatment recipient. A
// release needs an administrator plus a quorum of co-signing verifiers and
// reconciles the escrow, the case's raised totals and its outstanding target
// in one unit of work.
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

	"curaledger/internal/events"
	ledgermetrics "curaledger/internal/ledger/metrics"
	"curaledger/internal/ledger/models"
	"curaledger/internal/transfer"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/fixedpoint"
	"curaledger/pkg/platform/sentinel"
	"curaledger/pkg/requestcontext"
)

// CaseStore runs serialized mutations against one case.
type CaseStore interface {
	Execute(ctx context.Context, id domain.CaseID, fn func(agg *models.Aggregate) error) (*models.Aggregate, error)
}

// Registry answers verifier membership questions.
type Registry interface {
	IsActive(ctx context.Context, id domain.ActorID) (bool, error)
}

type Service struct {
	cases     CaseStore
	registry  Registry
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

func New(cases CaseStore, registry Registry, executor transfer.Executor, opts ...Option) (*Service, error) {
	if cases == nil {
		return nil, errors.New("case store is required")
	}
	if registry == nil {
		return nil, errors.New("verifier registry is required")
	}
	if executor == nil {
		return nil, errors.New("transfer executor is required")
	}
	s := &Service{
		cases:    cases,
		registry: registry,
		executor: executor,
		policy:   models.DefaultPolicy(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("curaledger/release"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AssetRequest names one asset to release. A zero Cap releases everything
// releasable.
type AssetRequest struct {
	Asset domain.AssetID
	Cap   uint64
}

// ReleaseRequest describes a release. An empty Assets list means native plus
// every token the escrow holds.
type ReleaseRequest struct {
	CaseID    domain.CaseID
	Approvers []domain.ActorID
	Recipient string
	Assets    []AssetRequest
}

// Movement is one asset leaving the escrow.
type Movement struct {
	Asset  domain.AssetID `json:"asset"`
	Amount uint64         `json:"amount"`
}

// Result is the committed release.
type Result struct {
	ReleaseID    uuid.UUID      `json:"release_id"`
	Case         *models.Case   `json:"case"`
	Escrow       *models.Escrow `json:"escrow"`
	Moved        []Movement     `json:"moved"`
	Swept        bool           `json:"swept"`
	TargetBefore uint64         `json:"target_before"`
}

// Release moves releasable escrow balances to the recipient. Native funds are
// swept when the case is funded and otherwise leave the reserve floor behind;
// tokens release their full entry. Every asset succeeds or the whole release
// is abandoned.
func (s *Service) Release(ctx context.Context, actor domain.Actor, req ReleaseRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "release.Release",
		trace.WithAttributes(attribute.String("case_id", string(req.CaseID))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("release", time.Since(start)) }()

	res, err := s.release(ctx, actor, req)
	if err != nil {
		s.metrics.IncrementError("release", string(dErrors.CodeOf(err)))
		return nil, err
	}

	moved := make(map[string]uint64, len(res.Moved))
	for _, m := range res.Moved {
		moved[string(m.Asset)] = m.Amount
	}
	s.metrics.IncrementRelease(res.Swept, moved)
	s.logger.InfoContext(ctx, "funds released",
		"case_id", req.CaseID,
		"release_id", res.ReleaseID,
		"recipient", req.Recipient,
		"assets", len(res.Moved),
		"swept", res.Swept,
		"target_before", res.TargetBefore,
		"target_after", res.Case.TargetAmount,
		"funded", res.Case.Funded,
		"actor", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	detail := "partial"
	if res.Swept {
		detail = "sweep"
	}
	for _, m := range res.Moved {
		events.Emit(ctx, s.publisher, s.logger, events.Event{
			Type:    events.FundsReleased,
			CaseID:  req.CaseID,
			Actor:   actor.ID,
			Subject: req.Recipient,
			Asset:   m.Asset,
			Amount:  m.Amount,
			Status:  string(res.Case.Status),
			Detail:  detail,
		})
	}
	return res, nil
}

func (s *Service) release(ctx context.Context, actor domain.Actor, req ReleaseRequest) (*Result, error) {
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only an administrator may release funds")
	}
	if req.Recipient == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if err := s.checkApprovers(ctx, req.Approvers); err != nil {
		return nil, err
	}
	if err := checkAssets(req.Assets); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	res := &Result{ReleaseID: uuid.New()}
	agg, err := s.cases.Execute(ctx, req.CaseID, func(agg *models.Aggregate) error {
		c := agg.Case
		if c.Status != models.CaseStatusVerified {
			return dErrors.New(dErrors.CodeCaseNotVerified, "case is not verified")
		}
		if !agg.Escrow.IsOpen() {
			return dErrors.New(dErrors.CodeEscrowNotFound, "case has no open escrow")
		}
		res.TargetBefore = c.TargetAmount
		fundedBefore := c.Funded

		plan := req.Assets
		explicit := len(plan) > 0
		if !explicit {
			for _, asset := range agg.Escrow.Balances.Assets() {
				plan = append(plan, AssetRequest{Asset: asset})
			}
		}

		for _, item := range plan {
			var (
				amount uint64
				err    error
			)
			if item.Asset.IsNative() {
				amount, err = s.releaseNative(agg, item.Cap, explicit)
			} else {
				amount, err = releaseToken(agg, item)
			}
			if err != nil {
				return err
			}
			if amount > 0 {
				res.Moved = append(res.Moved, Movement{Asset: item.Asset, Amount: amount})
			}
		}
		if len(res.Moved) == 0 {
			return dErrors.New(dErrors.CodeInsufficientBalance, "nothing to release")
		}

		// A funded release that empties every balance is a sweep, whichever
		// assets it held.
		total, err := agg.Escrow.Balances.Total()
		if err != nil {
			return err
		}
		res.Swept = fundedBefore && total == 0

		// Funded is re-evaluated against the target as it stood before this
		// release, so a partial release of a funded case clears the flag.
		raised, err := c.RaisedTotal()
		if err != nil {
			return err
		}
		bar, err := fixedpoint.CheckedAdd(res.TargetBefore, s.policy.FundingSlack)
		if err != nil {
			return err
		}
		if raised < bar {
			c.Funded = false
		}
		if res.Swept {
			agg.Escrow.Close(now)
		}
		c.UpdatedAt = now

		intents := make([]transfer.Intent, 0, len(res.Moved))
		for _, m := range res.Moved {
			intents = append(intents, transfer.Intent{
				From:      agg.Escrow.Account,
				To:        req.Recipient,
				Asset:     m.Asset,
				Amount:    m.Amount,
				CaseID:    c.ID,
				Reference: res.ReleaseID.String() + "/" + string(m.Asset),
			})
		}
		return s.executor.Execute(ctx, intents)
	})
	if err != nil {
		return nil, wrapCaseErr(err)
	}
	res.Case = agg.Case
	res.Escrow = agg.Escrow
	return res, nil
}

// releaseNative computes and applies the native leg. A funded case is swept;
// otherwise the reserve floor stays in the escrow.
func (s *Service) releaseNative(agg *models.Aggregate, limit uint64, explicit bool) (uint64, error) {
	balance := agg.Escrow.Balances.Native
	var releasable uint64
	if agg.Case.Funded {
		releasable = balance
	} else if balance > s.policy.ReserveFloor {
		releasable = balance - s.policy.ReserveFloor
	}
	if limit > 0 {
		releasable = fixedpoint.Min(releasable, limit)
	}
	if releasable == 0 {
		if explicit {
			return 0, dErrors.New(dErrors.CodeInsufficientBalance, "no releasable native balance")
		}
		return 0, nil
	}
	if err := debit(agg, domain.NativeAsset, releasable); err != nil {
		return 0, err
	}
	return releasable, nil
}

// releaseToken applies one token leg. Missing or empty entries are skipped.
func releaseToken(agg *models.Aggregate, item AssetRequest) (uint64, error) {
	entry := agg.Escrow.Balances.Of(item.Asset)
	if entry == 0 {
		return 0, nil
	}
	raised, err := agg.Case.RaisedTotal()
	if err != nil {
		return 0, err
	}
	releasable := fixedpoint.Min(entry, raised)
	if item.Cap > 0 {
		releasable = fixedpoint.Min(releasable, item.Cap)
	}
	if releasable == 0 {
		return 0, nil
	}
	if err := debit(agg, item.Asset, releasable); err != nil {
		return 0, err
	}
	return releasable, nil
}

// debit takes amount out of the escrow and the raised totals and reduces the
// outstanding target by at most its remaining value.
func debit(agg *models.Aggregate, asset domain.AssetID, amount uint64) error {
	if err := agg.Escrow.Balances.Debit(asset, amount); err != nil {
		return err
	}
	if err := agg.Case.Raised.Debit(asset, amount); err != nil {
		return err
	}
	return agg.Case.ReduceTarget(amount)
}

func (s *Service) checkApprovers(ctx context.Context, approvers []domain.ActorID) error {
	seen := make(map[domain.ActorID]struct{}, len(approvers))
	for _, id := range approvers {
		if id == "" {
			return dErrors.New(dErrors.CodeUnauthorized, "approver identity is required")
		}
		if _, dup := seen[id]; dup {
			return dErrors.New(dErrors.CodeUnauthorized, "approvers must be distinct")
		}
		seen[id] = struct{}{}
	}
	if len(seen) < s.policy.RequiredCoSigners {
		return dErrors.New(dErrors.CodeUnauthorized, "not enough co-signing verifiers")
	}
	for _, id := range approvers {
		active, err := s.registry.IsActive(ctx, id)
		if err != nil {
			return err
		}
		if !active {
			return dErrors.New(dErrors.CodeNotWhitelisted, "approver "+string(id)+" is not an active verifier")
		}
	}
	return nil
}

func checkAssets(assets []AssetRequest) error {
	seen := make(map[domain.AssetID]struct{}, len(assets))
	for _, a := range assets {
		if a.Asset == "" {
			return dErrors.New(dErrors.CodeValidation, "asset is required")
		}
		if _, dup := seen[a.Asset]; dup {
			return dErrors.New(dErrors.CodeValidation, "asset "+string(a.Asset)+" is listed twice")
		}
		seen[a.Asset] = struct{}{}
	}
	return nil
}

func wrapCaseErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release funds")
	}
}
