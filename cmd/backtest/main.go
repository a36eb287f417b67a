// backtest replays recorded tennis match logs through the pricing
// model and a trading strategy, reporting PnL and signal stats.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
	"github.com/courtedge/tennis-agents/pkg/trader/backtest"
	"github.com/courtedge/tennis-agents/pkg/trader/decision"

	"github.com/shopspring/decimal"
)

var (
	// Input flags
	dataFile   = flag.String("data", "", "Path to a match log file (JSON or CSV)")
	strategy   = flag.String("strategy", "edge", "Strategy: edge, favorite, momentum")
	outputFile = flag.String("output", "", "Output file for results (JSON or CSV)")

	// Config flags
	balance  = flag.Float64("balance", 100000, "Initial balance in cents")
	fee      = flag.Float64("fee", 1.5, "Per-contract fee in cents")
	bestOf   = flag.Int("best-of", 3, "Sets per match for CSV logs")
	verbose  = flag.Bool("verbose", false, "Verbose output")

	// Strategy-specific flags
	minEdge      = flag.Float64("min-edge", 2.0, "Minimum edge in cents (edge)")
	kellyFrac    = flag.Float64("kelly", 0.25, "Fraction of full Kelly (edge)")
	maxContracts = flag.Int64("max-contracts", 10, "Maximum contracts per order")
	maPeriod     = flag.Int("ma-period", 10, "Moving average period (momentum)")
	threshold    = flag.Float64("threshold", 2.0, "Cents above/below MA to trigger (momentum)")
	contracts    = flag.Int64("contracts", 5, "Contracts per trade (favorite, momentum)")
)

func main() {
	flag.Parse()

	if *dataFile == "" {
		log.Println("No data file provided, running demo with a synthetic match")
		runDemo()
		return
	}

	config := backtest.DefaultConfig()
	config.InitialBalanceCents = decimal.NewFromFloat(*balance)
	config.FeePerContractCents = decimal.NewFromFloat(*fee)
	bt := backtest.New(config)

	if strings.HasSuffix(*dataFile, ".json") {
		if err := bt.LoadLogFromJSON(*dataFile); err != nil {
			log.Fatalf("Failed to load JSON log: %v", err)
		}
	} else if strings.HasSuffix(*dataFile, ".csv") {
		if err := bt.LoadLogFromCSV(*dataFile, *bestOf); err != nil {
			log.Fatalf("Failed to load CSV log: %v", err)
		}
	} else {
		log.Fatalf("Unknown data file format: %s (expected .json or .csv)", *dataFile)
	}

	strat, err := createStrategy()
	if err != nil {
		log.Fatalf("Failed to create strategy: %v", err)
	}

	log.Printf("Running backtest with strategy: %s", *strategy)
	log.Printf("Initial balance: %.0fc", *balance)

	result, err := bt.Run(context.Background(), strat)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	printResults(result)

	if *outputFile != "" {
		if err := exportResults(result, *outputFile); err != nil {
			log.Printf("Failed to export results: %v", err)
		} else {
			log.Printf("Results exported to: %s", *outputFile)
		}
	}
}

func createStrategy() (backtest.Strategy, error) {
	switch strings.ToLower(*strategy) {
	case "edge", "model":
		return backtest.NewModelEdgeStrategy(decision.Config{
			MinEdgeCents:  *minEdge,
			FeeCents:      *fee,
			KellyFraction: *kellyFrac,
			MaxContracts:  *maxContracts,
		})
	case "favorite", "hold":
		return backtest.NewFavoriteHoldStrategy(*contracts), nil
	case "momentum", "ma":
		return backtest.NewMomentumStrategy(*maPeriod, *contracts, *threshold), nil
	default:
		log.Printf("Unknown strategy %s, defaulting to edge", *strategy)
		return backtest.NewModelEdgeStrategy(decision.DefaultConfig())
	}
}

func printResults(result *backtest.Result) {
	fmt.Println()
	fmt.Println("==================== BACKTEST RESULTS ====================")
	fmt.Println()
	fmt.Printf("  Period:          %s to %s\n",
		result.StartTime.Format("2006-01-02 15:04"),
		result.EndTime.Format("2006-01-02 15:04"))
	fmt.Printf("  Duration:        %s\n", result.Duration.Round(time.Minute))
	fmt.Printf("  Matches:         %d\n", result.Matches)
	fmt.Println()
	fmt.Printf("  Initial Balance: %.0fc\n", result.InitialBalance.InexactFloat64())
	fmt.Printf("  Final Balance:   %.1fc\n", result.FinalBalance.InexactFloat64())
	fmt.Printf("  Total PnL:       %.1fc\n", result.TotalPnL.InexactFloat64())
	fmt.Printf("  Total Return:    %.2f%%\n", result.TotalReturn.InexactFloat64())
	fmt.Println()
	fmt.Printf("  Total Trades:    %d\n", result.TotalTrades)
	fmt.Printf("  Winning Trades:  %d\n", result.WinningTrades)
	fmt.Printf("  Losing Trades:   %d\n", result.LosingTrades)
	fmt.Printf("  Win Rate:        %.1f%%\n", result.WinRate.Mul(decimal.NewFromInt(100)).InexactFloat64())
	fmt.Println()
	fmt.Printf("  Max Drawdown:    %.2f%%\n", result.MaxDrawdown.Mul(decimal.NewFromInt(100)).InexactFloat64())
	fmt.Printf("  Total Volume:    %.1fc\n", result.TotalVolume.InexactFloat64())
	fmt.Printf("  Total Fees:      %.1fc\n", result.TotalFees.InexactFloat64())
	fmt.Println()
	fmt.Println("===========================================================")

	if *verbose && len(result.Trades) > 0 {
		fmt.Println()
		fmt.Println("Trade History:")
		fmt.Println("--------------")
		for i, trade := range result.Trades {
			fmt.Printf("  %d. %s %s %d %s @ %sc (PnL: %.1fc)\n",
				i+1,
				trade.Timestamp.Format("2006-01-02 15:04"),
				trade.Action,
				trade.Contracts,
				trade.Ticker,
				trade.Price.String(),
				trade.PnL.InexactFloat64())
		}
	}
}

func exportResults(result *backtest.Result, filename string) error {
	if strings.HasSuffix(filename, ".json") {
		return exportJSON(result, filename)
	} else if strings.HasSuffix(filename, ".csv") {
		return exportCSV(result, filename)
	}
	return exportJSON(result, filename+".json")
}

func exportJSON(result *backtest.Result, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

func exportCSV(result *backtest.Result, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	w.Write([]string{"Metric", "Value"})
	w.Write([]string{"start_time", result.StartTime.Format(time.RFC3339)})
	w.Write([]string{"end_time", result.EndTime.Format(time.RFC3339)})
	w.Write([]string{"matches", fmt.Sprintf("%d", result.Matches)})
	w.Write([]string{"initial_balance_cents", result.InitialBalance.String()})
	w.Write([]string{"final_balance_cents", result.FinalBalance.String()})
	w.Write([]string{"total_pnl_cents", result.TotalPnL.String()})
	w.Write([]string{"total_return_pct", result.TotalReturn.String()})
	w.Write([]string{"total_trades", fmt.Sprintf("%d", result.TotalTrades)})
	w.Write([]string{"winning_trades", fmt.Sprintf("%d", result.WinningTrades)})
	w.Write([]string{"losing_trades", fmt.Sprintf("%d", result.LosingTrades)})
	w.Write([]string{"win_rate", result.WinRate.String()})
	w.Write([]string{"max_drawdown", result.MaxDrawdown.String()})

	w.Write([]string{})

	if len(result.Trades) > 0 {
		w.Write([]string{"timestamp", "ticker", "action", "contracts", "price_cents", "fee_cents", "pnl_cents"})
		for _, trade := range result.Trades {
			w.Write([]string{
				trade.Timestamp.Format(time.RFC3339),
				trade.Ticker,
				trade.Action,
				fmt.Sprintf("%d", trade.Contracts),
				trade.Price.String(),
				trade.Fee.String(),
				trade.PnL.String(),
			})
		}
	}

	return nil
}

// runDemo replays a synthetic straight-sets match against a market
// that is slow to catch up to the scoreboard.
func runDemo() {
	fmt.Println()
	fmt.Println("TENNIS BACKTEST DEMO")
	fmt.Println("====================")
	fmt.Println()

	matchLog := syntheticRomp("DEMO-HOME-WIN")

	strategies := []struct {
		name  string
		strat backtest.Strategy
	}{
		{"Favorite & Hold", backtest.NewFavoriteHoldStrategy(5)},
		{"Momentum (MA=5)", backtest.NewMomentumStrategy(5, 5, 2.0)},
	}
	if edge, err := backtest.NewModelEdgeStrategy(decision.DefaultConfig()); err == nil {
		strategies = append([]struct {
			name  string
			strat backtest.Strategy
		}{{"Model Edge", edge}}, strategies...)
	}

	fmt.Printf("Replaying synthetic match (%d ticks, home wins in straight sets)\n", len(matchLog.Ticks))
	fmt.Println()

	for _, s := range strategies {
		bt := backtest.New(backtest.DefaultConfig())
		if err := bt.LoadLog(matchLog); err != nil {
			fmt.Printf("%-16s | load failed: %v\n", s.name, err)
			continue
		}

		result, err := bt.Run(context.Background(), s.strat)
		if err != nil {
			fmt.Printf("%-16s | failed: %v\n", s.name, err)
			continue
		}

		fmt.Printf("%-16s | PnL: %8.1fc | Return: %6.2f%% | Trades: %3d | MaxDD: %5.2f%%\n",
			s.name,
			result.TotalPnL.InexactFloat64(),
			result.TotalReturn.InexactFloat64(),
			result.TotalTrades,
			result.MaxDrawdown.Mul(decimal.NewFromInt(100)).InexactFloat64())
	}

	fmt.Println()
	fmt.Println("To run with real data, use:")
	fmt.Println("  backtest -data match.json -strategy edge")
	fmt.Println()
}

// syntheticRomp builds a game-by-game log where the home player wins
// three of every four games while the market drifts up from 50c.
func syntheticRomp(ticker string) *backtest.MatchLog {
	start := time.Now().Add(-2 * time.Hour)
	matchLog := &backtest.MatchLog{
		Ticker:     ticker,
		Match:      "Demo Favorite vs Demo Underdog",
		BestOfSets: 3,
	}

	var setsA, setsB, gamesA, gamesB int
	server := score.PlayerA
	mid := 50.0
	tickNo := 0

	appendTick := func() {
		st := score.MatchState{
			SetsA: setsA, SetsB: setsB,
			GamesA: gamesA, GamesB: gamesB,
			Server:              server,
			TiebreakFirstServer: server,
		}
		bid := int64(mid) - 1
		ask := int64(mid) + 1
		matchLog.Ticks = append(matchLog.Ticks, backtest.Tick{
			Timestamp: start.Add(time.Duration(tickNo) * 4 * time.Minute),
			Ticker:    ticker,
			State:     st,
			YesBid:    bid,
			YesAsk:    ask,
			MidCents:  float64(bid+ask) / 2,
		})
		tickNo++
	}

	appendTick()
	game := 0
	for setsA < 2 && setsB < 2 {
		if game%4 == 3 {
			gamesB++
		} else {
			gamesA++
		}
		game++
		if server == score.PlayerA {
			server = score.PlayerB
		} else {
			server = score.PlayerA
		}

		if gamesA >= 6 && gamesA-gamesB >= 2 {
			setsA++
			gamesA, gamesB = 0, 0
		} else if gamesB >= 6 && gamesB-gamesA >= 2 {
			setsB++
			gamesA, gamesB = 0, 0
		}

		// The market concedes slowly.
		if mid < 94 {
			mid += 2.5
		}
		appendTick()
	}

	return matchLog
}
