package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine is the paper trading simulation engine. All methods are safe
// for concurrent use.
type Engine struct {
	config  *Config
	account *Account

	mu       sync.RWMutex
	tradeSeq int64

	onTrade  func(*Trade)
	onSettle func(ticker string, pnl decimal.Decimal)
}

// NewEngine creates a new paper trading engine.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		config: config,
		account: &Account{
			ID:             uuid.New().String(),
			InitialBalance: config.InitialBalanceCents,
			Balance:        config.InitialBalanceCents,
			Positions:      make(map[string]*Position),
			TradeHistory:   make([]Trade, 0),
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		},
	}
}

// OnTrade sets a callback invoked after every fill.
func (e *Engine) OnTrade(fn func(*Trade)) {
	e.onTrade = fn
}

// OnSettle sets a callback invoked when a market settles.
func (e *Engine) OnSettle(fn func(ticker string, pnl decimal.Decimal)) {
	e.onSettle = fn
}

// Buy opens or extends a position: contracts of the given side at the
// given price in cents. The fill is immediate.
func (e *Engine) Buy(ticker string, side Side, contracts int64, priceCents decimal.Decimal) (*Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if contracts <= 0 {
		return nil, fmt.Errorf("paper: contracts must be positive, got %d", contracts)
	}
	if priceCents.LessThanOrEqual(decimal.Zero) || priceCents.GreaterThanOrEqual(hundred) {
		return nil, fmt.Errorf("paper: price %s outside (0, 100)", priceCents)
	}

	size := decimal.NewFromInt(contracts)
	cost := size.Mul(priceCents)
	fee := size.Mul(e.config.FeePerContractCents)
	total := cost.Add(fee)

	if total.GreaterThan(e.account.Balance) {
		return nil, fmt.Errorf("paper: insufficient balance: have %s, need %s cents",
			e.account.Balance, total)
	}

	pos, ok := e.account.Positions[ticker]
	if ok {
		if pos.Side != side {
			return nil, fmt.Errorf("paper: position in %s already holds %s, cannot also buy %s",
				ticker, pos.Side, side)
		}
		// Weighted average entry across the old and new lots.
		oldSize := decimal.NewFromInt(pos.Contracts)
		newTotal := oldSize.Add(size)
		pos.AvgEntryCents = oldSize.Mul(pos.AvgEntryCents).Add(cost).Div(newTotal)
		pos.Contracts += contracts
		pos.UpdatedAt = time.Now()
	} else {
		pos = &Position{
			Ticker:        ticker,
			Side:          side,
			Contracts:     contracts,
			AvgEntryCents: priceCents,
			MarkCents:     priceCents,
			OpenedAt:      time.Now(),
			UpdatedAt:     time.Now(),
		}
		e.account.Positions[ticker] = pos
	}

	e.account.Balance = e.account.Balance.Sub(total)

	trade := e.recordTrade(ticker, side, ActionBuy, contracts, priceCents, fee, decimal.Zero)
	return trade, nil
}

// Sell closes up to contracts of the open position at the given price.
// Realized PnL is booked against the average entry.
func (e *Engine) Sell(ticker string, contracts int64, priceCents decimal.Decimal) (*Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if contracts <= 0 {
		return nil, fmt.Errorf("paper: contracts must be positive, got %d", contracts)
	}
	pos, ok := e.account.Positions[ticker]
	if !ok {
		return nil, fmt.Errorf("paper: no position in %s", ticker)
	}
	if contracts > pos.Contracts {
		return nil, fmt.Errorf("paper: position in %s has %d contracts, cannot sell %d",
			ticker, pos.Contracts, contracts)
	}

	size := decimal.NewFromInt(contracts)
	proceeds := size.Mul(priceCents)
	fee := size.Mul(e.config.FeePerContractCents)
	pnl := priceCents.Sub(pos.AvgEntryCents).Mul(size).Sub(fee)

	pos.Contracts -= contracts
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.UpdatedAt = time.Now()
	if pos.Contracts == 0 {
		delete(e.account.Positions, ticker)
	}

	e.account.Balance = e.account.Balance.Add(proceeds).Sub(fee)

	trade := e.recordTrade(ticker, pos.Side, ActionSell, contracts, priceCents, fee, pnl)
	return trade, nil
}

// Settle resolves a market: holders of the winning side receive 100
// cents per contract, the losing side receives nothing. No fee applies
// to settlement.
func (e *Engine) Settle(ticker string, winner Side) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.account.Positions[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("paper: no position in %s", ticker)
	}

	size := decimal.NewFromInt(pos.Contracts)
	var payout decimal.Decimal
	if pos.Side == winner {
		payout = size.Mul(hundred)
	}
	pnl := payout.Sub(size.Mul(pos.AvgEntryCents))

	e.account.Balance = e.account.Balance.Add(payout)
	delete(e.account.Positions, ticker)

	settlePrice := decimal.Zero
	if pos.Side == winner {
		settlePrice = hundred
	}
	e.recordTrade(ticker, pos.Side, ActionSell, pos.Contracts, settlePrice, decimal.Zero, pnl)

	if e.onSettle != nil {
		e.onSettle(ticker, pnl)
	}
	return pnl, nil
}

// MarkPrice updates the mark for an open position and recomputes its
// unrealized PnL. Unknown tickers are ignored.
func (e *Engine) MarkPrice(ticker string, priceCents decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.account.Positions[ticker]
	if !ok {
		return
	}
	pos.MarkCents = priceCents
	pos.UnrealizedPnL = priceCents.Sub(pos.AvgEntryCents).Mul(decimal.NewFromInt(pos.Contracts))
	pos.UpdatedAt = time.Now()
}

// GetPosition returns a copy of the position for a ticker.
func (e *Engine) GetPosition(ticker string) (*Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos, ok := e.account.Positions[ticker]
	if !ok {
		return nil, false
	}
	cp := *pos
	return &cp, true
}

// GetPositions returns copies of all open positions.
func (e *Engine) GetPositions() []*Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	positions := make([]*Position, 0, len(e.account.Positions))
	for _, pos := range e.account.Positions {
		cp := *pos
		positions = append(positions, &cp)
	}
	return positions
}

// GetBalance returns the current cash balance in cents.
func (e *Engine) GetBalance() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.account.Balance
}

// GetTrades returns the trade history.
func (e *Engine) GetTrades() []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	trades := make([]Trade, len(e.account.TradeHistory))
	copy(trades, e.account.TradeHistory)
	return trades
}

// GetStats computes summary statistics for the account.
func (e *Engine) GetStats() *AccountStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &AccountStats{}

	var closing int
	for _, t := range e.account.TradeHistory {
		stats.TotalTrades++
		stats.TotalVolume = stats.TotalVolume.Add(t.PriceCents.Mul(decimal.NewFromInt(t.Contracts)))
		stats.TotalFees = stats.TotalFees.Add(t.FeeCents)

		if t.Action != ActionSell {
			continue
		}
		closing++
		stats.RealizedPnL = stats.RealizedPnL.Add(t.PnLCents)
		if t.PnLCents.GreaterThan(decimal.Zero) {
			stats.WinningTrades++
		} else if t.PnLCents.LessThan(decimal.Zero) {
			stats.LosingTrades++
		}
	}

	for _, pos := range e.account.Positions {
		stats.UnrealizedPnL = stats.UnrealizedPnL.Add(pos.UnrealizedPnL)
	}

	stats.TotalPnL = stats.RealizedPnL.Add(stats.UnrealizedPnL)
	if closing > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
			Div(decimal.NewFromInt(int64(closing)))
	}

	return stats
}

// Reset restores the account to its initial state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.account = &Account{
		ID:             uuid.New().String(),
		InitialBalance: e.config.InitialBalanceCents,
		Balance:        e.config.InitialBalanceCents,
		Positions:      make(map[string]*Position),
		TradeHistory:   make([]Trade, 0),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	e.tradeSeq = 0
}

// recordTrade appends a trade to history and fires the callback.
// Caller holds the write lock.
func (e *Engine) recordTrade(ticker string, side Side, action Action, contracts int64, price, fee, pnl decimal.Decimal) *Trade {
	e.tradeSeq++
	trade := Trade{
		ID:         fmt.Sprintf("paper-%d", e.tradeSeq),
		Ticker:     ticker,
		Side:       side,
		Action:     action,
		Contracts:  contracts,
		PriceCents: price,
		FeeCents:   fee,
		PnLCents:   pnl,
		Timestamp:  time.Now(),
	}
	e.account.TradeHistory = append(e.account.TradeHistory, trade)
	e.account.UpdatedAt = trade.Timestamp

	if e.onTrade != nil {
		e.onTrade(&trade)
	}
	return &trade
}
