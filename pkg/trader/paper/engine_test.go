package paper

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestEngine() *Engine {
	return NewEngine(&Config{
		InitialBalanceCents: decimal.NewFromInt(100000),
		FeePerContractCents: decimal.NewFromFloat(1.5),
	})
}

func TestBuyOpensPosition(t *testing.T) {
	e := newTestEngine()

	trade, err := e.Buy("TENNIS-ABC", SideYes, 10, dec(45))
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if trade.Contracts != 10 || trade.Action != ActionBuy {
		t.Errorf("Unexpected trade: %+v", trade)
	}

	pos, ok := e.GetPosition("TENNIS-ABC")
	if !ok {
		t.Fatal("Expected open position")
	}
	if pos.Contracts != 10 || pos.Side != SideYes {
		t.Errorf("Unexpected position: %+v", pos)
	}
	if !pos.AvgEntryCents.Equal(dec(45)) {
		t.Errorf("AvgEntry = %s, want 45", pos.AvgEntryCents)
	}

	// 10 * 45 cost + 10 * 1.5 fee = 465 cents off the balance.
	want := decimal.NewFromInt(100000 - 465)
	if !e.GetBalance().Equal(want) {
		t.Errorf("Balance = %s, want %s", e.GetBalance(), want)
	}
}

func TestBuyAveragesEntry(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideNo, 10, dec(40)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := e.Buy("T", SideNo, 10, dec(60)); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _ := e.GetPosition("T")
	if pos.Contracts != 20 {
		t.Errorf("Contracts = %d, want 20", pos.Contracts)
	}
	if !pos.AvgEntryCents.Equal(dec(50)) {
		t.Errorf("AvgEntry = %s, want 50", pos.AvgEntryCents)
	}
}

func TestBuyValidation(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideYes, 0, dec(50)); err == nil {
		t.Error("Expected error for zero contracts")
	}
	if _, err := e.Buy("T", SideYes, 5, dec(0)); err == nil {
		t.Error("Expected error for price 0")
	}
	if _, err := e.Buy("T", SideYes, 5, dec(100)); err == nil {
		t.Error("Expected error for price 100")
	}
	// 100000 cents cannot cover 3000 contracts at 50 cents.
	if _, err := e.Buy("T", SideYes, 3000, dec(50)); err == nil {
		t.Error("Expected insufficient balance error")
	}
	// Opposite side in the same market is rejected.
	if _, err := e.Buy("T", SideYes, 5, dec(50)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := e.Buy("T", SideNo, 5, dec(50)); err == nil {
		t.Error("Expected error for opposite side buy")
	}
}

func TestSellBooksPnL(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideYes, 10, dec(40)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	trade, err := e.Sell("T", 10, dec(55))
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	// (55-40)*10 - 15 fee = 135 cents profit.
	if !trade.PnLCents.Equal(dec(135)) {
		t.Errorf("PnL = %s, want 135", trade.PnLCents)
	}
	if _, ok := e.GetPosition("T"); ok {
		t.Error("Position should be closed")
	}

	// Start 100000, buy cost 400+15, sell proceeds 550-15.
	want := decimal.NewFromInt(100000 - 415 + 535)
	if !e.GetBalance().Equal(want) {
		t.Errorf("Balance = %s, want %s", e.GetBalance(), want)
	}
}

func TestSellPartial(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideYes, 10, dec(40)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.Sell("T", 4, dec(50)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	pos, ok := e.GetPosition("T")
	if !ok {
		t.Fatal("Position should remain open")
	}
	if pos.Contracts != 6 {
		t.Errorf("Contracts = %d, want 6", pos.Contracts)
	}

	if _, err := e.Sell("T", 7, dec(50)); err == nil {
		t.Error("Expected error selling more than held")
	}
	if _, err := e.Sell("MISSING", 1, dec(50)); err == nil {
		t.Error("Expected error for unknown ticker")
	}
}

func TestSettleWinner(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideYes, 10, dec(40)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	var settled decimal.Decimal
	e.OnSettle(func(ticker string, pnl decimal.Decimal) { settled = pnl })

	pnl, err := e.Settle("T", SideYes)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	// Payout 1000, entry cost 400.
	if !pnl.Equal(dec(600)) {
		t.Errorf("PnL = %s, want 600", pnl)
	}
	if !settled.Equal(pnl) {
		t.Errorf("Callback pnl = %s, want %s", settled, pnl)
	}
	if _, ok := e.GetPosition("T"); ok {
		t.Error("Position should be gone after settlement")
	}
}

func TestSettleLoser(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideNo, 10, dec(40)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	pnl, err := e.Settle("T", SideYes)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if !pnl.Equal(dec(-400)) {
		t.Errorf("PnL = %s, want -400", pnl)
	}

	// Balance lost the entire stake plus entry fee.
	want := decimal.NewFromInt(100000 - 400 - 15)
	if !e.GetBalance().Equal(want) {
		t.Errorf("Balance = %s, want %s", e.GetBalance(), want)
	}
}

func TestMarkPrice(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideYes, 10, dec(40)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	e.MarkPrice("T", dec(47))

	pos, _ := e.GetPosition("T")
	if !pos.UnrealizedPnL.Equal(dec(70)) {
		t.Errorf("UnrealizedPnL = %s, want 70", pos.UnrealizedPnL)
	}

	// Unknown tickers are a no-op.
	e.MarkPrice("MISSING", dec(50))
}

func TestStats(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("A", SideYes, 10, dec(40)); err != nil {
		t.Fatalf("buy A: %v", err)
	}
	if _, err := e.Sell("A", 10, dec(60)); err != nil {
		t.Fatalf("sell A: %v", err)
	}
	if _, err := e.Buy("B", SideNo, 10, dec(50)); err != nil {
		t.Fatalf("buy B: %v", err)
	}
	if _, err := e.Sell("B", 10, dec(30)); err != nil {
		t.Fatalf("sell B: %v", err)
	}

	stats := e.GetStats()
	if stats.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", stats.TotalTrades)
	}
	if stats.WinningTrades != 1 || stats.LosingTrades != 1 {
		t.Errorf("W/L = %d/%d, want 1/1", stats.WinningTrades, stats.LosingTrades)
	}
	if !stats.WinRate.Equal(dec(0.5)) {
		t.Errorf("WinRate = %s, want 0.5", stats.WinRate)
	}
	// (60-40)*10-15 and (30-50)*10-15.
	if !stats.RealizedPnL.Equal(dec(185 - 215)) {
		t.Errorf("RealizedPnL = %s, want -30", stats.RealizedPnL)
	}
}

func TestReset(t *testing.T) {
	e := newTestEngine()

	if _, err := e.Buy("T", SideYes, 10, dec(40)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	e.Reset()

	if len(e.GetPositions()) != 0 {
		t.Error("Expected no positions after reset")
	}
	if !e.GetBalance().Equal(decimal.NewFromInt(100000)) {
		t.Errorf("Balance = %s, want 100000", e.GetBalance())
	}
	if len(e.GetTrades()) != 0 {
		t.Error("Expected empty trade history after reset")
	}
}

func TestOnTradeCallback(t *testing.T) {
	e := newTestEngine()

	var got []*Trade
	e.OnTrade(func(tr *Trade) { got = append(got, tr) })

	if _, err := e.Buy("T", SideYes, 1, dec(50)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.Sell("T", 1, dec(50)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 callbacks, got %d", len(got))
	}
	if got[0].Action != ActionBuy || got[1].Action != ActionSell {
		t.Error("Callback order wrong")
	}
}
