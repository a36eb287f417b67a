package backtest

import (
	"context"

	"github.com/courtedge/tennis-agents/pkg/trader/decision"

	"github.com/shopspring/decimal"
)

// ModelEdgeStrategy trades the live workflow's rule: buy when the
// model's fair price clears the market by the edge gate, sell when the
// market clears the model.
type ModelEdgeStrategy struct {
	engine *decision.Engine
}

// NewModelEdgeStrategy creates the strategy from decision config.
func NewModelEdgeStrategy(cfg decision.Config) (*ModelEdgeStrategy, error) {
	engine, err := decision.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &ModelEdgeStrategy{engine: engine}, nil
}

func (s *ModelEdgeStrategy) OnStart(ctx context.Context, bt *Backtest) {}

func (s *ModelEdgeStrategy) OnEnd(ctx context.Context, bt *Backtest) {}

func (s *ModelEdgeStrategy) OnTick(ctx context.Context, bt *Backtest, tick Tick) {
	if tick.MidCents <= 0 {
		return
	}
	fair, ok := bt.FairPrice(tick.Ticker)
	if !ok {
		return
	}

	d, err := s.engine.Evaluate(fair, tick.MidCents, bt.Balance())
	if err != nil || d.Contracts == 0 {
		return
	}

	switch d.Action {
	case decision.ActionBuy:
		price := decimal.NewFromFloat(tick.MidCents)
		if tick.YesAsk > 0 {
			price = decimal.NewFromInt(tick.YesAsk)
		}
		_ = bt.Buy(tick.Ticker, d.Contracts, price)
	case decision.ActionSell:
		pos, held := bt.Position(tick.Ticker)
		if !held {
			return
		}
		contracts := d.Contracts
		if contracts > pos.Contracts {
			contracts = pos.Contracts
		}
		price := decimal.NewFromFloat(tick.MidCents)
		if tick.YesBid > 0 {
			price = decimal.NewFromInt(tick.YesBid)
		}
		_ = bt.Sell(tick.Ticker, contracts, price)
	}
}

// FavoriteHoldStrategy buys the home side once the model makes it the
// favorite and holds to settlement. A baseline for the edge strategy.
type FavoriteHoldStrategy struct {
	contracts int64
	entered   map[string]bool
}

// NewFavoriteHoldStrategy creates a favorite-and-hold baseline.
func NewFavoriteHoldStrategy(contracts int64) *FavoriteHoldStrategy {
	return &FavoriteHoldStrategy{
		contracts: contracts,
		entered:   make(map[string]bool),
	}
}

func (s *FavoriteHoldStrategy) OnStart(ctx context.Context, bt *Backtest) {}

func (s *FavoriteHoldStrategy) OnEnd(ctx context.Context, bt *Backtest) {}

func (s *FavoriteHoldStrategy) OnTick(ctx context.Context, bt *Backtest, tick Tick) {
	if s.entered[tick.Ticker] || tick.MidCents <= 0 {
		return
	}
	fair, ok := bt.FairPrice(tick.Ticker)
	if !ok || fair <= 50 {
		return
	}

	price := decimal.NewFromFloat(tick.MidCents)
	if tick.YesAsk > 0 {
		price = decimal.NewFromInt(tick.YesAsk)
	}
	if err := bt.Buy(tick.Ticker, s.contracts, price); err == nil {
		s.entered[tick.Ticker] = true
	}
}

// MomentumStrategy trades market price momentum against a moving
// average, ignoring the model. Useful as a control.
type MomentumStrategy struct {
	lookback  int
	contracts int64
	threshold float64 // cents above/below the average to act

	prices map[string][]float64
}

// NewMomentumStrategy creates a momentum strategy.
func NewMomentumStrategy(lookback int, contracts int64, thresholdCents float64) *MomentumStrategy {
	return &MomentumStrategy{
		lookback:  lookback,
		contracts: contracts,
		threshold: thresholdCents,
		prices:    make(map[string][]float64),
	}
}

func (s *MomentumStrategy) OnStart(ctx context.Context, bt *Backtest) {}

func (s *MomentumStrategy) OnEnd(ctx context.Context, bt *Backtest) {}

func (s *MomentumStrategy) OnTick(ctx context.Context, bt *Backtest, tick Tick) {
	if tick.MidCents <= 0 {
		return
	}

	window := append(s.prices[tick.Ticker], tick.MidCents)
	if len(window) > s.lookback {
		window = window[len(window)-s.lookback:]
	}
	s.prices[tick.Ticker] = window
	if len(window) < s.lookback {
		return
	}

	var sum float64
	for _, p := range window {
		sum += p
	}
	avg := sum / float64(len(window))

	pos, held := bt.Position(tick.Ticker)
	switch {
	case tick.MidCents > avg+s.threshold && !held:
		price := decimal.NewFromFloat(tick.MidCents)
		if tick.YesAsk > 0 {
			price = decimal.NewFromInt(tick.YesAsk)
		}
		_ = bt.Buy(tick.Ticker, s.contracts, price)
	case tick.MidCents < avg-s.threshold && held:
		price := decimal.NewFromFloat(tick.MidCents)
		if tick.YesBid > 0 {
			price = decimal.NewFromInt(tick.YesBid)
		}
		_ = bt.Sell(tick.Ticker, pos.Contracts, price)
	}
}
