// Package metrics provides Prometheus metrics for the trading system.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// TradingMetrics collects and exposes trading-related Prometheus metrics.
type TradingMetrics struct {
	registry *prometheus.Registry

	// Pricing metrics
	FairPrice       *prometheus.GaugeVec
	MarketPrice     *prometheus.GaugeVec
	PricingLatency  *prometheus.HistogramVec
	PricingFailures *prometheus.CounterVec

	// Serve model metrics
	ServeProbability *prometheus.GaugeVec
	GamesObserved    *prometheus.CounterVec

	// Signal metrics
	SignalsTotal *prometheus.CounterVec
	SignalEdge   *prometheus.HistogramVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec
	TradeFees   *prometheus.CounterVec

	// Position metrics
	PositionContracts *prometheus.GaugeVec
	UnrealizedPnL     *prometheus.GaugeVec
	RealizedPnL       *prometheus.CounterVec

	// Account metrics
	AccountBalance *prometheus.GaugeVec
	TotalExposure  *prometheus.GaugeVec

	// Policy metrics
	PolicyViolations *prometheus.CounterVec
	CooldownActive   *prometheus.GaugeVec
	DailyOrdersUsed  *prometheus.GaugeVec

	// Feed and session metrics
	FeedPolls     *prometheus.CounterVec
	ParseFailures *prometheus.CounterVec
	ActiveMatches *prometheus.GaugeVec
	StageLatency  *prometheus.HistogramVec
}

// NewTradingMetrics creates a new trading metrics collector.
func NewTradingMetrics() *TradingMetrics {
	registry := prometheus.NewRegistry()

	tm := &TradingMetrics{
		registry: registry,

		FairPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_fair_price_cents",
				Help: "Model fair price for a market in cents",
			},
			[]string{"ticker"},
		),
		MarketPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_market_price_cents",
				Help: "Observed market price for a market in cents",
			},
			[]string{"ticker"},
		),
		PricingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tennis_pricing_latency_seconds",
				Help:    "Time to price one match state",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~400ms
			},
			[]string{},
		),
		PricingFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_pricing_failures_total",
				Help: "Total number of pricing failures",
			},
			[]string{"reason"},
		),

		ServeProbability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_serve_probability",
				Help: "Current estimated serve-point win probability",
			},
			[]string{"match", "player"},
		),
		GamesObserved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_games_observed_total",
				Help: "Completed service games fed into the serve model",
			},
			[]string{"match"},
		),

		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_signals_total",
				Help: "Total number of trading signals generated",
			},
			[]string{"action"},
		),
		SignalEdge: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tennis_signal_edge_cents",
				Help:    "Signal edge in cents",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 12, 20, 35, 50},
			},
			[]string{"action"},
		),

		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_trades_total",
				Help: "Total number of trades executed",
			},
			[]string{"action", "ticker"},
		),
		TradeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_trade_volume_cents",
				Help: "Total traded notional in cents",
			},
			[]string{"action"},
		),
		TradeFees: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_trade_fees_cents",
				Help: "Total fees paid in cents",
			},
			[]string{},
		),

		PositionContracts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_position_contracts",
				Help: "Current position size in contracts",
			},
			[]string{"ticker", "side"},
		),
		UnrealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_unrealized_pnl_cents",
				Help: "Unrealized P&L in cents",
			},
			[]string{"ticker"},
		),
		RealizedPnL: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_realized_pnl_cents",
				Help: "Realized P&L in cents (can be negative)",
			},
			[]string{"ticker"},
		),

		AccountBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_account_balance_cents",
				Help: "Current account balance in cents",
			},
			[]string{"account_type"},
		),
		TotalExposure: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_total_exposure_cents",
				Help: "Total cost basis across open positions in cents",
			},
			[]string{},
		),

		PolicyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_policy_violations_total",
				Help: "Total number of policy violations",
			},
			[]string{"violation_type"},
		),
		CooldownActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_cooldown_active",
				Help: "Whether loss cooldown is active (1=yes, 0=no)",
			},
			[]string{},
		),
		DailyOrdersUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_daily_orders_used",
				Help: "Number of orders placed today",
			},
			[]string{},
		),

		FeedPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_feed_polls_total",
				Help: "Score feed polls by outcome",
			},
			[]string{"status"},
		),
		ParseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tennis_parse_failures_total",
				Help: "Feed payloads rejected by scoreboard validation",
			},
			[]string{},
		),
		ActiveMatches: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tennis_active_matches",
				Help: "Number of live matches being tracked",
			},
			[]string{},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tennis_stage_latency_seconds",
				Help:    "Individual pipeline stage latency",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"stage"},
		),
	}

	tm.registerAll()

	return tm
}

func (tm *TradingMetrics) registerAll() {
	tm.registry.MustRegister(
		tm.FairPrice,
		tm.MarketPrice,
		tm.PricingLatency,
		tm.PricingFailures,
		tm.ServeProbability,
		tm.GamesObserved,
		tm.SignalsTotal,
		tm.SignalEdge,
		tm.TradesTotal,
		tm.TradeVolume,
		tm.TradeFees,
		tm.PositionContracts,
		tm.UnrealizedPnL,
		tm.RealizedPnL,
		tm.AccountBalance,
		tm.TotalExposure,
		tm.PolicyViolations,
		tm.CooldownActive,
		tm.DailyOrdersUsed,
		tm.FeedPolls,
		tm.ParseFailures,
		tm.ActiveMatches,
		tm.StageLatency,
	)
}

// Registry returns the prometheus registry.
func (tm *TradingMetrics) Registry() *prometheus.Registry {
	return tm.registry
}

// --- Helper methods for recording metrics ---

// RecordPricing records one pricing pass for a market.
func (tm *TradingMetrics) RecordPricing(ticker string, fairCents, marketCents, latencySec float64) {
	tm.FairPrice.WithLabelValues(ticker).Set(fairCents)
	if marketCents > 0 {
		tm.MarketPrice.WithLabelValues(ticker).Set(marketCents)
	}
	tm.PricingLatency.WithLabelValues().Observe(latencySec)
}

// RecordPricingFailure records a pricing failure.
func (tm *TradingMetrics) RecordPricingFailure(reason string) {
	tm.PricingFailures.WithLabelValues(reason).Inc()
}

// UpdateServeModel updates serve model gauges for one match.
func (tm *TradingMetrics) UpdateServeModel(match, player string, probability float64) {
	tm.ServeProbability.WithLabelValues(match, player).Set(probability)
}

// RecordGameObserved counts a completed service game.
func (tm *TradingMetrics) RecordGameObserved(match string) {
	tm.GamesObserved.WithLabelValues(match).Inc()
}

// RecordSignal records a trading signal.
func (tm *TradingMetrics) RecordSignal(action string, edgeCents float64) {
	tm.SignalsTotal.WithLabelValues(action).Inc()
	if edgeCents > 0 {
		tm.SignalEdge.WithLabelValues(action).Observe(edgeCents)
	}
}

// RecordTrade records a completed trade.
func (tm *TradingMetrics) RecordTrade(action, ticker string, volumeCents, feeCents float64) {
	tm.TradesTotal.WithLabelValues(action, ticker).Inc()
	tm.TradeVolume.WithLabelValues(action).Add(volumeCents)
	tm.TradeFees.WithLabelValues().Add(feeCents)
}

// UpdatePosition updates position gauges.
func (tm *TradingMetrics) UpdatePosition(ticker, side string, contracts, unrealizedPnL float64) {
	tm.PositionContracts.WithLabelValues(ticker, side).Set(contracts)
	tm.UnrealizedPnL.WithLabelValues(ticker).Set(unrealizedPnL)
}

// RecordRealizedPnL records realized P&L.
func (tm *TradingMetrics) RecordRealizedPnL(ticker string, pnlCents float64) {
	tm.RealizedPnL.WithLabelValues(ticker).Add(pnlCents)
}

// UpdateAccount updates account gauges.
func (tm *TradingMetrics) UpdateAccount(accountType string, balanceCents, exposureCents float64) {
	tm.AccountBalance.WithLabelValues(accountType).Set(balanceCents)
	tm.TotalExposure.WithLabelValues().Set(exposureCents)
}

// RecordPolicyViolation records a policy violation.
func (tm *TradingMetrics) RecordPolicyViolation(violationType string) {
	tm.PolicyViolations.WithLabelValues(violationType).Inc()
}

// UpdatePolicy updates policy gauges.
func (tm *TradingMetrics) UpdatePolicy(cooldownActive bool, dailyOrders int) {
	if cooldownActive {
		tm.CooldownActive.WithLabelValues().Set(1)
	} else {
		tm.CooldownActive.WithLabelValues().Set(0)
	}
	tm.DailyOrdersUsed.WithLabelValues().Set(float64(dailyOrders))
}

// RecordFeedPoll records a score feed poll.
func (tm *TradingMetrics) RecordFeedPoll(status string) {
	tm.FeedPolls.WithLabelValues(status).Inc()
}

// RecordParseFailure counts a rejected feed payload.
func (tm *TradingMetrics) RecordParseFailure() {
	tm.ParseFailures.WithLabelValues().Inc()
}

// UpdateActiveMatches updates the tracked match count.
func (tm *TradingMetrics) UpdateActiveMatches(count int) {
	tm.ActiveMatches.WithLabelValues().Set(float64(count))
}

// RecordStage records a pipeline stage execution.
func (tm *TradingMetrics) RecordStage(stage string, durationSec float64) {
	tm.StageLatency.WithLabelValues(stage).Observe(durationSec)
}

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *TradingMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *TradingMetrics {
	once.Do(func() {
		defaultMetrics = NewTradingMetrics()
	})
	return defaultMetrics
}
