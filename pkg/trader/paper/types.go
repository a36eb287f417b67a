// Package paper provides paper trading simulation for Kalshi-style
// binary tennis markets. Fills are immediate at the supplied market
// price; open positions settle at 0 or 100 cents when the match ends.
package paper

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the contract side held or traded.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other contract side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Action is the trade direction.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Trade is an executed paper trade. Prices are in cents per contract.
type Trade struct {
	ID         string          `json:"id"`
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	Action     Action          `json:"action"`
	Contracts  int64           `json:"contracts"`
	PriceCents decimal.Decimal `json:"price_cents"`
	FeeCents   decimal.Decimal `json:"fee_cents"`
	PnLCents   decimal.Decimal `json:"pnl_cents"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Position is an open holding in one market.
type Position struct {
	Ticker        string          `json:"ticker"`
	Side          Side            `json:"side"`
	Contracts     int64           `json:"contracts"`
	AvgEntryCents decimal.Decimal `json:"avg_entry_cents"`
	MarkCents     decimal.Decimal `json:"mark_cents"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl_cents"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl_cents"`
	OpenedAt      time.Time       `json:"opened_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Account is a paper trading account. All money amounts are cents.
type Account struct {
	ID             string               `json:"id"`
	InitialBalance decimal.Decimal      `json:"initial_balance_cents"`
	Balance        decimal.Decimal      `json:"balance_cents"`
	Positions      map[string]*Position `json:"positions"` // ticker -> position
	TradeHistory   []Trade              `json:"trade_history"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// AccountStats summarizes account performance.
type AccountStats struct {
	TotalPnL      decimal.Decimal `json:"total_pnl_cents"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl_cents"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl_cents"`
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalVolume   decimal.Decimal `json:"total_volume_cents"`
	TotalFees     decimal.Decimal `json:"total_fees_cents"`
}

// Config configures the simulation.
type Config struct {
	// InitialBalanceCents is the starting bankroll.
	InitialBalanceCents decimal.Decimal

	// FeePerContractCents is charged on every fill, per contract.
	FeePerContractCents decimal.Decimal
}

// DefaultConfig returns a $1000 bankroll with a 1.5 cent per-contract
// fee, in line with exchange taker fees near even odds.
func DefaultConfig() *Config {
	return &Config{
		InitialBalanceCents: decimal.NewFromInt(100000),
		FeePerContractCents: decimal.NewFromFloat(1.5),
	}
}
