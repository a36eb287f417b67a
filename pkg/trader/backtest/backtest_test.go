package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
	"github.com/courtedge/tennis-agents/pkg/trader/decision"

	"github.com/shopspring/decimal"
)

var replayStart = time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

func tickAt(minute int, ticker string, st score.MatchState, bid, ask int64) Tick {
	tick := Tick{
		Timestamp: replayStart.Add(time.Duration(minute) * time.Minute),
		Ticker:    ticker,
		State:     st,
		YesBid:    bid,
		YesAsk:    ask,
	}
	if bid > 0 && ask > 0 {
		tick.MidCents = float64(bid+ask) / 2
	}
	return tick
}

// homeRompLog is a match the home player wins in straight lopsided
// sets while the market keeps quoting a coin flip.
func homeRompLog(ticker string) *MatchLog {
	return &MatchLog{
		Ticker:     ticker,
		Match:      "Carlos Alcaraz vs Jannik Sinner",
		BestOfSets: 3,
		Ticks: []Tick{
			tickAt(0, ticker, score.MatchState{Server: score.PlayerA}, 49, 51),
			tickAt(30, ticker, score.MatchState{
				SetsA: 1, GamesA: 5, PointsA: 3,
				Server: score.PlayerA, TiebreakFirstServer: score.PlayerA,
			}, 49, 51),
			tickAt(60, ticker, score.MatchState{
				SetsA: 2, GamesA: 6,
				Server: score.PlayerA, TiebreakFirstServer: score.PlayerA,
			}, 0, 0),
		},
	}
}

func TestNewBacktest(t *testing.T) {
	bt := New(nil)
	if bt == nil {
		t.Fatal("New returned nil")
	}
	if bt.Balance().LessThanOrEqual(decimal.Zero) {
		t.Error("initial balance should be positive")
	}
}

func TestLoadLogValidation(t *testing.T) {
	bt := New(nil)
	if err := bt.LoadLog(&MatchLog{Ticker: ""}); err == nil {
		t.Error("expected error for missing ticker")
	}
	if err := bt.LoadLog(&MatchLog{Ticker: "T"}); err == nil {
		t.Error("expected error for empty ticks")
	}
	if err := bt.LoadLog(homeRompLog("T")); err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
}

func TestRunWithoutData(t *testing.T) {
	bt := New(nil)
	strategy, err := NewModelEdgeStrategy(decision.DefaultConfig())
	if err != nil {
		t.Fatalf("NewModelEdgeStrategy: %v", err)
	}
	if _, err := bt.Run(context.Background(), strategy); err == nil {
		t.Error("expected error with no logs loaded")
	}
}

func TestModelEdgeStrategyProfitsOnMispricedMatch(t *testing.T) {
	bt := New(nil)
	if err := bt.LoadLog(homeRompLog("TENNIS-ALC-SIN")); err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	strategy, err := NewModelEdgeStrategy(decision.DefaultConfig())
	if err != nil {
		t.Fatalf("NewModelEdgeStrategy: %v", err)
	}

	result, err := bt.Run(context.Background(), strategy)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The model sees a near-certain home win at 1-0, 5-0, 40-0 while
	// the market quotes 50c. The strategy must buy and settle at 100.
	if result.TotalTrades == 0 {
		t.Fatal("expected trades on a heavily mispriced match")
	}
	if !result.FinalBalance.GreaterThan(result.InitialBalance) {
		t.Errorf("final balance %s should exceed initial %s",
			result.FinalBalance, result.InitialBalance)
	}
	if !result.TotalPnL.IsPositive() {
		t.Errorf("total pnl = %s, want positive", result.TotalPnL)
	}
	if result.Matches != 1 {
		t.Errorf("matches = %d, want 1", result.Matches)
	}
	if len(result.EquityCurve) == 0 {
		t.Error("equity curve is empty")
	}
	if result.StartTime != replayStart {
		t.Errorf("start time = %v, want %v", result.StartTime, replayStart)
	}
}

func TestModelEdgeStrategySkipsFairMarket(t *testing.T) {
	// A fresh match priced at its model value of 50 offers no edge.
	log := &MatchLog{
		Ticker:     "TENNIS-FAIR",
		BestOfSets: 3,
		Ticks: []Tick{
			tickAt(0, "TENNIS-FAIR", score.MatchState{Server: score.PlayerA}, 49, 51),
			tickAt(1, "TENNIS-FAIR", score.MatchState{Server: score.PlayerA}, 49, 51),
		},
	}
	bt := New(nil)
	if err := bt.LoadLog(log); err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	strategy, err := NewModelEdgeStrategy(decision.DefaultConfig())
	if err != nil {
		t.Fatalf("NewModelEdgeStrategy: %v", err)
	}

	result, err := bt.Run(context.Background(), strategy)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0", result.TotalTrades)
	}
	if !result.FinalBalance.Equal(result.InitialBalance) {
		t.Errorf("final balance %s changed without trades", result.FinalBalance)
	}
}

func TestFavoriteHoldSettlesAtOutcome(t *testing.T) {
	bt := New(nil)
	if err := bt.LoadLog(homeRompLog("TENNIS-ALC-SIN")); err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	strategy := NewFavoriteHoldStrategy(5)

	result, err := bt.Run(context.Background(), strategy)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One entry at 51 plus the settlement trade at 100.
	if result.TotalTrades != 2 {
		t.Fatalf("trades = %d, want 2", result.TotalTrades)
	}
	if _, ok := bt.Position("TENNIS-ALC-SIN"); ok {
		t.Error("position should be closed by settlement")
	}
	if !result.FinalBalance.GreaterThan(result.InitialBalance) {
		t.Errorf("final balance %s should exceed initial %s",
			result.FinalBalance, result.InitialBalance)
	}
}

func TestExplicitOutcomeOverride(t *testing.T) {
	// Home leads but retires; the log records an away win.
	homeWon := false
	log := homeRompLog("TENNIS-RET")
	log.Ticks = log.Ticks[:2] // never reaches a deciding tick
	log.HomeWon = &homeWon

	bt := New(nil)
	if err := bt.LoadLog(log); err != nil {
		t.Fatalf("LoadLog: %v", err)
	}
	result, err := bt.Run(context.Background(), NewFavoriteHoldStrategy(5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.FinalBalance.LessThan(result.InitialBalance) {
		t.Errorf("final balance %s should show the loss", result.FinalBalance)
	}
	if _, ok := bt.Position("TENNIS-RET"); ok {
		t.Error("position should be settled to zero")
	}
}

func TestFairAndMarketAccessors(t *testing.T) {
	bt := New(nil)
	if err := bt.LoadLog(homeRompLog("TENNIS-ALC-SIN")); err != nil {
		t.Fatalf("LoadLog: %v", err)
	}

	if _, ok := bt.FairPrice("TENNIS-ALC-SIN"); ok {
		t.Error("fair price should be unknown before any tick")
	}
	if _, _, _, ok := bt.MarketPrice("UNKNOWN"); ok {
		t.Error("unknown ticker should have no market price")
	}

	if _, err := bt.Run(context.Background(), NewMomentumStrategy(3, 5, 2)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	fair, ok := bt.FairPrice("TENNIS-ALC-SIN")
	if !ok {
		t.Fatal("fair price missing after replay")
	}
	if fair != 100 {
		t.Errorf("fair = %g after a completed home win, want 100", fair)
	}
	bid, ask, mid, ok := bt.MarketPrice("TENNIS-ALC-SIN")
	if !ok {
		t.Fatal("market price missing after replay")
	}
	if bid != 49 || ask != 51 || mid != 50 {
		t.Errorf("market = %d/%d/%g, want 49/51/50", bid, ask, mid)
	}
}
