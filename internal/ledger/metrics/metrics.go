package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger engines.
type Metrics struct {
	OperationLatency *prometheus.HistogramVec
	OperationErrors  *prometheus.CounterVec

	VotesCast      *prometheus.CounterVec
	CaseDecisions  *prometheus.CounterVec
	CasesSubmitted prometheus.Counter
	CasesClosed    prometheus.Counter

	DonationsRecorded *prometheus.CounterVec
	DonatedAmount     *prometheus.CounterVec
	DonorBookkeeping  prometheus.Counter

	ReleasesExecuted *prometheus.CounterVec
	ReleasedAmount   *prometheus.CounterVec

	ActiveVerifiers prometheus.Gauge

	ReportCache *prometheus.CounterVec
}

// New registers the ledger metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers against reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cura_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		OperationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_operation_errors_total",
			Help: "Failed ledger operations by operation and error code",
		}, []string{"operation", "code"}),
		VotesCast: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_votes_total",
			Help: "Votes recorded by choice",
		}, []string{"choice"}),
		CaseDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_case_decisions_total",
			Help: "Case verification outcomes by status and path",
		}, []string{"status", "path"}),
		CasesSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "cura_ledger_cases_submitted_total",
			Help: "Cases submitted",
		}),
		CasesClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "cura_ledger_cases_closed_total",
			Help: "Rejected cases closed and removed",
		}),
		DonationsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_donations_total",
			Help: "Donations recorded by asset kind",
		}, []string{"asset_kind"}),
		DonatedAmount: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_donated_units_total",
			Help: "Donated amount in smallest units by asset",
		}, []string{"asset"}),
		DonorBookkeeping: f.NewCounter(prometheus.CounterOpts{
			Name: "cura_ledger_donor_bookkeeping_failures_total",
			Help: "Donor aggregate updates that failed after the donation committed",
		}),
		ReleasesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_releases_total",
			Help: "Release operations by kind (sweep or partial)",
		}, []string{"kind"}),
		ReleasedAmount: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_released_units_total",
			Help: "Released amount in smallest units by asset",
		}, []string{"asset"}),
		ActiveVerifiers: f.NewGauge(prometheus.GaugeOpts{
			Name: "cura_ledger_active_verifiers",
			Help: "Number of active verifiers in the registry",
		}),
		ReportCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cura_ledger_report_cache_total",
			Help: "Report cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveOperation records the latency of one operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncrementError counts a failed operation by error code.
func (m *Metrics) IncrementError(operation, code string) {
	if m != nil {
		m.OperationErrors.WithLabelValues(operation, code).Inc()
	}
}

func (m *Metrics) IncrementVote(approve bool) {
	if m == nil {
		return
	}
	choice := "no"
	if approve {
		choice = "yes"
	}
	m.VotesCast.WithLabelValues(choice).Inc()
}

// IncrementDecision counts a verification outcome. path is "vote", "finalize"
// or "override".
func (m *Metrics) IncrementDecision(status, path string) {
	if m != nil {
		m.CaseDecisions.WithLabelValues(status, path).Inc()
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m != nil {
		m.CasesSubmitted.Inc()
	}
}

func (m *Metrics) IncrementClosed() {
	if m != nil {
		m.CasesClosed.Inc()
	}
}

func (m *Metrics) IncrementDonation(asset string, native bool, amount uint64) {
	if m == nil {
		return
	}
	kind := "token"
	if native {
		kind = "native"
	}
	m.DonationsRecorded.WithLabelValues(kind).Inc()
	m.DonatedAmount.WithLabelValues(asset).Add(float64(amount))
}

func (m *Metrics) IncrementDonorBookkeepingFailure() {
	if m != nil {
		m.DonorBookkeeping.Inc()
	}
}

// IncrementRelease counts a committed release and the units moved per asset.
func (m *Metrics) IncrementRelease(sweep bool, moved map[string]uint64) {
	if m == nil {
		return
	}
	kind := "partial"
	if sweep {
		kind = "sweep"
	}
	m.ReleasesExecuted.WithLabelValues(kind).Inc()
	for asset, amount := range moved {
		m.ReleasedAmount.WithLabelValues(asset).Add(float64(amount))
	}
}

func (m *Metrics) SetActiveVerifiers(n uint64) {
	if m != nil {
		m.ActiveVerifiers.Set(float64(n))
	}
}

// IncrementReportCache records "hit", "miss" or "error".
func (m *Metrics) IncrementReportCache(result string) {
	if m != nil {
		m.ReportCache.WithLabelValues(result).Inc()
	}
}
