// Package decision turns a fair price and a market price into a trade
// action and a risk-bounded position size.
package decision

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is the trading signal for a market.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionNoTrade Action = "NO_TRADE"
)

// Config holds the thresholds and sizing parameters.
type Config struct {
	MinEdgeCents  float64 // minimum edge over fees required to trade
	FeeCents      float64 // per-contract venue fee
	KellyFraction float64 // fraction of full Kelly, in (0, 1]
	MaxContracts  int64   // hard cap on position size
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MinEdgeCents:  2.0,
		FeeCents:      1.5,
		KellyFraction: 0.25,
		MaxContracts:  10,
	}
}

// Engine applies the edge gate and fractional-Kelly sizing rule.
type Engine struct {
	cfg Config
}

// NewEngine validates the configuration and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MinEdgeCents < 0 || cfg.FeeCents < 0 {
		return nil, fmt.Errorf("decision: edge threshold and fee must be non-negative")
	}
	if cfg.KellyFraction <= 0 || cfg.KellyFraction > 1 {
		return nil, fmt.Errorf("decision: kelly fraction must be in (0,1], got %g", cfg.KellyFraction)
	}
	if cfg.MaxContracts <= 0 {
		return nil, fmt.Errorf("decision: max contracts must be positive, got %d", cfg.MaxContracts)
	}
	return &Engine{cfg: cfg}, nil
}

// Signal compares fair and market prices (both in cents) and returns the
// action plus the edge that justified it. The edge must clear the minimum
// threshold plus fees in either direction; otherwise NO_TRADE with zero
// edge.
func (e *Engine) Signal(fairCents, marketCents float64) (Action, float64) {
	edge := fairCents - marketCents
	gate := e.cfg.MinEdgeCents + e.cfg.FeeCents
	if edge >= gate {
		return ActionBuy, edge
	}
	if -edge >= gate {
		return ActionSell, -edge
	}
	return ActionNoTrade, 0
}

// Size returns the contract count for a trade at marketCents given the
// model's fairCents and the available bankroll (in cents).
//
// Full Kelly for a contract paying 100 on a win: k = (p(b+1) - q) / b with
// b = (100 - price) / price. k is clamped to [0,1], scaled by the
// configured Kelly fraction, and the resulting stake is capped at
// MaxContracts. Non-tradeable prices (<= 0 or >= 100) size to zero.
func (e *Engine) Size(fairCents, marketCents float64, bankroll decimal.Decimal) (int64, error) {
	if bankroll.IsNegative() {
		return 0, fmt.Errorf("decision: negative bankroll %s", bankroll)
	}
	if marketCents <= 0 || marketCents >= 100 {
		return 0, nil
	}

	p := fairCents / 100
	q := 1 - p
	b := (100 - marketCents) / marketCents

	k := (p*(b+1) - q) / b
	if k < 0 {
		k = 0
	}
	if k > 1 {
		k = 1
	}
	scaled := k * e.cfg.KellyFraction
	if scaled <= 0 {
		return 0, nil
	}

	contracts := bankroll.
		Mul(decimal.NewFromFloat(scaled)).
		Div(decimal.NewFromFloat(marketCents)).
		IntPart()
	if contracts > e.cfg.MaxContracts {
		contracts = e.cfg.MaxContracts
	}
	if contracts < 0 {
		contracts = 0
	}
	return contracts, nil
}

// Decision bundles the outcome of one evaluation.
type Decision struct {
	Action    Action
	EdgeCents float64
	Contracts int64
}

// Evaluate runs the signal gate and, when it fires, the sizing rule.
func (e *Engine) Evaluate(fairCents, marketCents float64, bankroll decimal.Decimal) (Decision, error) {
	action, edge := e.Signal(fairCents, marketCents)
	d := Decision{Action: action, EdgeCents: edge}
	if action == ActionNoTrade {
		return d, nil
	}

	// Sizing is always done on the YES side the model favors: a SELL of an
	// overpriced contract is a BUY of its complement.
	fair, market := fairCents, marketCents
	if action == ActionSell {
		fair, market = 100-fairCents, 100-marketCents
	}
	contracts, err := e.Size(fair, market, bankroll)
	if err != nil {
		return Decision{Action: ActionNoTrade}, err
	}
	d.Contracts = contracts
	if contracts == 0 {
		d.Action = ActionNoTrade
		d.EdgeCents = 0
	}
	return d, nil
}
