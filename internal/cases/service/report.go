package service

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"curaledger/internal/ledger/models"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/fixedpoint"
	"curaledger/pkg/requestcontext"
)

// NativeDecimals is the display precision of the native asset. Token amounts
// are shown in base units since their precision is not known to the ledger.
const NativeDecimals = 9

// AssetAmount is one balance line of a report.
type AssetAmount struct {
	Asset   domain.AssetID `json:"asset"`
	Amount  uint64         `json:"amount"`
	Display string         `json:"display"`
}

// EscrowView is the escrow part of a report.
type EscrowView struct {
	Account  string        `json:"account"`
	Open     bool          `json:"open"`
	Balances []AssetAmount `json:"balances"`
	OpenedAt time.Time     `json:"opened_at"`
	ClosedAt *time.Time    `json:"closed_at,omitempty"`
}

// Report is a read-only snapshot of a case. Percentages are integer basis
// points (10000 = 100%).
type Report struct {
	CaseID         domain.CaseID     `json:"case_id"`
	Patient        domain.ActorID    `json:"patient"`
	Description    string            `json:"description"`
	RecordsLink    string            `json:"records_link,omitempty"`
	Status         models.CaseStatus `json:"status"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	VotingDeadline time.Time         `json:"voting_deadline"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`

	YesVotes         uint64 `json:"yes_votes"`
	NoVotes          uint64 `json:"no_votes"`
	ActiveVerifiers  uint64 `json:"active_verifiers"`
	ParticipationBps uint64 `json:"participation_bps"`
	ApprovalBps      uint64 `json:"approval_bps"`
	QuorumMet        bool   `json:"quorum_met"`
	ApprovalMet      bool   `json:"approval_met"`

	Target        AssetAmount   `json:"target"`
	FundingBar    uint64        `json:"funding_bar"`
	Raised        []AssetAmount `json:"raised"`
	RaisedTotal   uint64        `json:"raised_total"`
	Funded        bool          `json:"funded"`
	Escrow        *EscrowView   `json:"escrow,omitempty"`
	DonationCount int           `json:"donation_count"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Report renders the case view, reading through the cache when one is set.
// Reads take no case lock, so a report may trail an in-flight mutation.
func (s *Service) Report(ctx context.Context, id domain.CaseID) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "cases.Report")
	defer span.End()

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.metrics.IncrementReportCache("error")
			s.logger.WarnContext(ctx, "report cache read failed",
				"case_id", id,
				"error", err,
			)
		case ok:
			s.metrics.IncrementReportCache("hit")
			return cached, nil
		default:
			s.metrics.IncrementReportCache("miss")
		}
	}

	report, err := s.buildReport(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, report); err != nil {
			s.logger.WarnContext(ctx, "report cache write failed",
				"case_id", id,
				"error", err,
			)
		}
	}
	return report, nil
}

func (s *Service) buildReport(ctx context.Context, id domain.CaseID) (*Report, error) {
	agg, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, wrapCaseErr(err)
	}
	active, err := s.registry.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}
	donations, err := s.store.ListDonations(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donations")
	}

	c := agg.Case
	total, err := c.TotalVotes()
	if err != nil {
		return nil, err
	}
	raisedTotal, err := c.RaisedTotal()
	if err != nil {
		return nil, err
	}
	bar, err := c.FundingBar(s.policy.FundingSlack)
	if err != nil {
		return nil, err
	}

	r := &Report{
		CaseID:          c.ID,
		Patient:         c.Patient,
		Description:     c.Description,
		RecordsLink:     c.RecordsLink,
		Status:          c.Status,
		SubmittedAt:     c.SubmittedAt,
		VotingDeadline:  c.VotingDeadline(s.policy.VerificationWindow),
		DecidedAt:       c.DecidedAt,
		YesVotes:        c.YesVotes,
		NoVotes:         c.NoVotes,
		ActiveVerifiers: active,
		Target:          amountOf(domain.NativeAsset, c.TargetAmount),
		FundingBar:      bar,
		Raised:          balanceLines(c.Raised),
		RaisedTotal:     raisedTotal,
		Funded:          c.Funded,
		DonationCount:   len(donations),
		GeneratedAt:     requestcontext.Now(ctx),
	}
	if r.ParticipationBps, err = fixedpoint.BasisPoints(total, active); err != nil {
		return nil, err
	}
	if r.ApprovalBps, err = fixedpoint.BasisPoints(c.YesVotes, total); err != nil {
		return nil, err
	}
	if r.QuorumMet, err = fixedpoint.MeetsThreshold(total, active, s.policy.ParticipationPercent); err != nil {
		return nil, err
	}
	if r.ApprovalMet, err = fixedpoint.MeetsThreshold(c.YesVotes, total, s.policy.ApprovalPercent); err != nil {
		return nil, err
	}
	if e := agg.Escrow; e != nil {
		r.Escrow = &EscrowView{
			Account:  e.Account,
			Open:     e.IsOpen(),
			Balances: balanceLines(e.Balances),
			OpenedAt: e.OpenedAt,
			ClosedAt: e.ClosedAt,
		}
	}
	return r, nil
}

func balanceLines(b models.Balances) []AssetAmount {
	out := make([]AssetAmount, 0, len(b.Tokens)+1)
	out = append(out, amountOf(domain.NativeAsset, b.Native))
	for _, t := range b.Tokens {
		out = append(out, amountOf(t.Asset, t.Amount))
	}
	return out
}

func amountOf(asset domain.AssetID, amount uint64) AssetAmount {
	return AssetAmount{Asset: asset, Amount: amount, Display: FormatAmount(asset, amount)}
}

// FormatAmount renders amount for display: native with NativeDecimals places,
// tokens as integers.
func FormatAmount(asset domain.AssetID, amount uint64) string {
	v := new(big.Int).SetUint64(amount)
	if asset.IsNative() {
		return decimal.NewFromBigInt(v, -NativeDecimals).StringFixed(NativeDecimals)
	}
	return decimal.NewFromBigInt(v, 0).String()
}
