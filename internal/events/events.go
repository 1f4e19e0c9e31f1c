// Package events carries ledger domain events to observers. Events are emitted
// after the mutation they describe has committed; delivery is best effort and a
// failed publish never fails the operation.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"curaledger/pkg/domain"
	"curaledger/pkg/requestcontext"
)

// Type names a ledger event.
type Type string

const (
	CaseSubmitted    Type = "case_submitted"
	VoteCast         Type = "vote_cast"
	CaseVerified     Type = "case_verified"
	CaseRejected     Type = "case_rejected"
	CaseClosed       Type = "case_closed"
	DonationRecorded Type = "donation_recorded"
	FundsReleased    Type = "funds_released"
	VerifierAdded    Type = "verifier_added"
	VerifierRemoved  Type = "verifier_removed"
	DonorRecognized  Type = "donor_recognized"
)

// Event is transport agnostic; Subject holds the secondary party (verifier,
// donor or recipient) when there is one.
type Event struct {
	Type       Type           `json:"type"`
	CaseID     domain.CaseID  `json:"case_id,omitempty"`
	Actor      domain.ActorID `json:"actor,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Asset      domain.AssetID `json:"asset,omitempty"`
	Amount     uint64         `json:"amount,omitempty"`
	Status     string         `json:"status,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Emit stamps request id and time from ctx, publishes, and logs a failed
// publish instead of returning it. A nil publisher is a no-op.
func Emit(ctx context.Context, pub Publisher, logger *slog.Logger, event Event) {
	if pub == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if err := pub.Publish(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "event publish failed",
			"event", event.Type,
			"case_id", event.CaseID,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

// LogPublisher writes each event as an audit log line.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, string(event.Type),
		"case_id", event.CaseID,
		"actor", event.Actor,
		"subject", event.Subject,
		"asset", event.Asset,
		"amount", event.Amount,
		"status", event.Status,
		"request_id", event.RequestID,
		"log_type", "audit",
	)
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory for tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t in publish order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
