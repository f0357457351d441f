// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Presale metrics
	PurchasesTotal   *prometheus.CounterVec
	AssetReceived    *prometheus.CounterVec
	FundsRaised      prometheus.Gauge
	TokensAvailable  prometheus.Gauge
	TokensSold       prometheus.Gauge
	InvestorCount    prometheus.Gauge
	ClaimsTotal      prometheus.Counter
	TokensClaimed    prometheus.Counter
	RefundsTotal     *prometheus.CounterVec
	WithdrawalsTotal *prometheus.CounterVec
	OperationErrors  *prometheus.CounterVec

	// Latency metrics
	OperationDuration *prometheus.HistogramVec
	LedgerCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// API metrics
	HTTPRequests          *prometheus.CounterVec
	WSSubscribers         prometheus.Gauge
	JournalAppendFailures prometheus.Counter
	UnconfirmedTransfers  prometheus.Counter

	// Health metrics
	LastCommitTimestamp prometheus.Gauge
	LedgerVersion       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "presale_ledger"
	}

	return &Metrics{
		PurchasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "purchases_total",
			Help:      "Total number of committed purchases by payment asset",
		}, []string{"asset"}),
		AssetReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "asset_received_total",
			Help:      "Total payment received per asset, in whole asset units",
		}, []string{"asset"}),
		FundsRaised: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "funds_raised_quote",
			Help:      "Funds raised in whole quote units",
		}),
		TokensAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "tokens_available",
			Help:      "Sale tokens still available, in whole tokens",
		}),
		TokensSold: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "tokens_sold",
			Help:      "Sale tokens sold, in whole tokens",
		}),
		InvestorCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "investors",
			Help:      "Number of investors with a record",
		}),
		ClaimsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "claims_total",
			Help:      "Total number of successful claims",
		}),
		TokensClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "tokens_claimed_total",
			Help:      "Sale tokens released by claims, in whole tokens",
		}),
		RefundsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "refunds_total",
			Help:      "Total number of refund transfers by asset",
		}, []string{"asset"}),
		WithdrawalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "withdrawals_total",
			Help:      "Total number of treasury sweeps by asset",
		}, []string{"asset"}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected operations by operation and error kind",
		}, []string{"operation", "kind"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "presale",
			Name:      "operation_duration_seconds",
			Help:      "Mutating operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		LedgerCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assetledger",
			Name:      "call_latency_seconds",
			Help:      "External asset ledger call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_subscribers",
			Help:      "Current number of journal feed subscribers",
		}),
		JournalAppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "append_failures_total",
			Help:      "Total number of journal batches that failed to persist",
		}),
		UnconfirmedTransfers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "unconfirmed_transfers_total",
			Help:      "Committed versions whose asset transfer outcome is unknown",
		}),

		LastCommitTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_commit_timestamp",
			Help:      "Unix timestamp of the last committed ledger version",
		}),
		LedgerVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "ledger_version",
			Help:      "Last committed ledger version",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// units converts base units to a float of whole units for gauges.
func units(v *big.Int, decimals int32) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(v),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	).Float64()
	return f
}

// RecordPurchase records a committed purchase.
func RecordPurchase(asset string, assetAmount *big.Int, assetDecimals int32) {
	DefaultMetrics.PurchasesTotal.WithLabelValues(asset).Inc()
	DefaultMetrics.AssetReceived.WithLabelValues(asset).Add(units(assetAmount, assetDecimals))
}

// UpdateLedger updates the ledger gauges from a committed state.
func UpdateLedger(fundsRaised, tokensAvailable, tokensSold *big.Int, quoteDecimals, tokenDecimals int32, investors, version, committedAt int64) {
	DefaultMetrics.FundsRaised.Set(units(fundsRaised, quoteDecimals))
	DefaultMetrics.TokensAvailable.Set(units(tokensAvailable, tokenDecimals))
	DefaultMetrics.TokensSold.Set(units(tokensSold, tokenDecimals))
	DefaultMetrics.InvestorCount.Set(float64(investors))
	DefaultMetrics.LedgerVersion.Set(float64(version))
	DefaultMetrics.LastCommitTimestamp.Set(float64(committedAt))
}

// RecordClaim records a successful claim.
func RecordClaim(amount *big.Int, tokenDecimals int32) {
	DefaultMetrics.ClaimsTotal.Inc()
	DefaultMetrics.TokensClaimed.Add(units(amount, tokenDecimals))
}

// RecordRefund records a refund transfer.
func RecordRefund(asset string) {
	DefaultMetrics.RefundsTotal.WithLabelValues(asset).Inc()
}

// RecordWithdrawal records a treasury sweep transfer.
func RecordWithdrawal(asset string) {
	DefaultMetrics.WithdrawalsTotal.WithLabelValues(asset).Inc()
}

// RecordOperation records the duration and outcome of a mutating operation.
func RecordOperation(operation string, seconds float64, errKind string) {
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
	if errKind != "" {
		DefaultMetrics.OperationErrors.WithLabelValues(operation, errKind).Inc()
	}
}

// RecordLedgerCall records external asset ledger call latency.
func RecordLedgerCall(method string, seconds float64) {
	DefaultMetrics.LedgerCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(route string, status int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, http.StatusText(status)).Inc()
}

// SetWSSubscribers updates the journal feed subscriber gauge.
func SetWSSubscribers(n int) {
	DefaultMetrics.WSSubscribers.Set(float64(n))
}

// RecordJournalAppendFailure records a journal batch that failed to persist.
func RecordJournalAppendFailure() {
	DefaultMetrics.JournalAppendFailures.Inc()
}

// RecordUnconfirmedTransfer records a commit kept despite an unknown transfer outcome.
func RecordUnconfirmedTransfer() {
	DefaultMetrics.UnconfirmedTransfers.Inc()
}
