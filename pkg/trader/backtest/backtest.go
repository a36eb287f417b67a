// Package backtest replays recorded match logs through the pricing
// model and a strategy against recorded market prices.
package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/courtedge/tennis-agents/pkg/tennis/model"
	"github.com/courtedge/tennis-agents/pkg/tennis/score"
	"github.com/courtedge/tennis-agents/pkg/tennis/serve"
	"github.com/courtedge/tennis-agents/pkg/trader/paper"

	"github.com/shopspring/decimal"
)

// Tick is one recorded observation: a score snapshot plus the market's
// quote at that moment. Prices are cents; zero means no quote.
type Tick struct {
	Timestamp time.Time        `json:"timestamp"`
	Ticker    string           `json:"ticker"`
	State     score.MatchState `json:"state"`
	YesBid    int64            `json:"yes_bid,omitempty"`
	YesAsk    int64            `json:"yes_ask,omitempty"`
	MidCents  float64          `json:"mid_cents,omitempty"`
}

// MatchLog holds one recorded match for replay. The market pays 100
// if the home player (player A) wins.
type MatchLog struct {
	Ticker     string `json:"ticker"`
	Match      string `json:"match"`
	BestOfSets int    `json:"best_of_sets"`
	Ticks      []Tick `json:"ticks"`

	// HomeWon overrides the outcome derived from the final tick, for
	// logs that end before the deciding point (retirements).
	HomeWon *bool `json:"home_won,omitempty"`
}

// Config holds backtest configuration.
type Config struct {
	InitialBalanceCents decimal.Decimal
	FeePerContractCents decimal.Decimal
	Priors              serve.Priors
	AdaptiveBase        float64
}

// DefaultConfig returns default backtest configuration.
func DefaultConfig() *Config {
	return &Config{
		InitialBalanceCents: decimal.NewFromInt(100000),
		FeePerContractCents: decimal.NewFromFloat(1.5),
		Priors:              serve.DefaultPriors(),
		AdaptiveBase:        serve.DefaultAdaptiveBase,
	}
}

// Result holds backtest results. Money amounts are cents.
type Result struct {
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	Duration       time.Duration   `json:"duration"`
	InitialBalance decimal.Decimal `json:"initial_balance_cents"`
	FinalBalance   decimal.Decimal `json:"final_balance_cents"`
	TotalPnL       decimal.Decimal `json:"total_pnl_cents"`
	TotalReturn    decimal.Decimal `json:"total_return_pct"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRate        decimal.Decimal `json:"win_rate"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	TotalVolume    decimal.Decimal `json:"total_volume_cents"`
	TotalFees      decimal.Decimal `json:"total_fees_cents"`
	Matches        int             `json:"matches"`
	Trades         []TradeRecord   `json:"trades,omitempty"`
	EquityCurve    []EquityPoint   `json:"equity_curve,omitempty"`
}

// TradeRecord records a single trade during backtest.
type TradeRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Ticker    string          `json:"ticker"`
	Action    string          `json:"action"`
	Contracts int64           `json:"contracts"`
	Price     decimal.Decimal `json:"price_cents"`
	Fee       decimal.Decimal `json:"fee_cents"`
	PnL       decimal.Decimal `json:"pnl_cents"`
}

// EquityPoint records equity at a point in time.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity_cents"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// Strategy is the interface for trading strategies.
type Strategy interface {
	// OnTick is called for each replayed observation.
	OnTick(ctx context.Context, bt *Backtest, tick Tick)

	// OnStart is called when backtest starts.
	OnStart(ctx context.Context, bt *Backtest)

	// OnEnd is called when backtest ends, before settlement.
	OnEnd(ctx context.Context, bt *Backtest)
}

// replayState is the per-match model state rebuilt during replay.
type replayState struct {
	log       *MatchLog
	tracker   *score.Tracker
	estimator *serve.Estimator
	pricer    *model.Pricer

	state     score.MatchState
	haveState bool
	fairCents float64
	lastMid   float64
	lastBid   int64
	lastAsk   int64
}

// Backtest runs a historical replay.
type Backtest struct {
	config      *Config
	logs        map[string]*MatchLog // ticker -> log
	replays     map[string]*replayState
	engine      *paper.Engine
	currentTime time.Time

	// Results tracking
	trades      []TradeRecord
	equityCurve []EquityPoint
	peakEquity  decimal.Decimal
	maxDrawdown decimal.Decimal
}

// New creates a new backtest.
func New(config *Config) *Backtest {
	if config == nil {
		config = DefaultConfig()
	}

	bt := &Backtest{
		config:     config,
		logs:       make(map[string]*MatchLog),
		replays:    make(map[string]*replayState),
		peakEquity: config.InitialBalanceCents,
	}

	bt.engine = paper.NewEngine(&paper.Config{
		InitialBalanceCents: config.InitialBalanceCents,
		FeePerContractCents: config.FeePerContractCents,
	})

	bt.engine.OnTrade(func(trade *paper.Trade) {
		bt.trades = append(bt.trades, TradeRecord{
			Timestamp: bt.currentTime,
			Ticker:    trade.Ticker,
			Action:    string(trade.Action),
			Contracts: trade.Contracts,
			Price:     trade.PriceCents,
			Fee:       trade.FeeCents,
			PnL:       trade.PnLCents,
		})
	})

	return bt
}

// LoadLog loads a recorded match.
func (bt *Backtest) LoadLog(log *MatchLog) error {
	if log.Ticker == "" {
		return fmt.Errorf("backtest: log has no ticker")
	}
	if len(log.Ticks) == 0 {
		return fmt.Errorf("backtest: log %s has no ticks", log.Ticker)
	}
	if log.BestOfSets == 0 {
		log.BestOfSets = 3
	}

	est, err := serve.NewEstimator(bt.config.Priors, bt.config.AdaptiveBase)
	if err != nil {
		return err
	}
	pricer, err := model.NewPricer(log.BestOfSets)
	if err != nil {
		return err
	}

	bt.logs[log.Ticker] = log
	bt.replays[log.Ticker] = &replayState{
		log:       log,
		tracker:   score.NewTracker(),
		estimator: est,
		pricer:    pricer,
	}
	return nil
}

// LoadLogFromJSON loads a recorded match from a JSON file.
func (bt *Backtest) LoadLogFromJSON(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var log MatchLog
	if err := json.NewDecoder(file).Decode(&log); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return bt.LoadLog(&log)
}

// LoadLogFromCSV loads ticks from a CSV file. Expected columns:
// timestamp, ticker, sets_a, sets_b, games_a, games_b, point_a,
// point_b, tb_points_a, tb_points_b, server, yes_bid, yes_ask.
// Game points use tennis notation; tiebreak points are raw counts and
// imply a tiebreak when present at 6-6.
func (bt *Backtest) LoadLogFromCSV(filename string, bestOfSets int) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[col] = i
	}
	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	ticksByTicker := make(map[string][]Tick)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		tick, err := parseTick(record, field)
		if err != nil {
			return err
		}
		ticksByTicker[tick.Ticker] = append(ticksByTicker[tick.Ticker], tick)
	}

	for ticker, ticks := range ticksByTicker {
		sort.Slice(ticks, func(i, j int) bool {
			return ticks[i].Timestamp.Before(ticks[j].Timestamp)
		})
		log := &MatchLog{
			Ticker:     ticker,
			BestOfSets: bestOfSets,
			Ticks:      ticks,
		}
		if err := bt.LoadLog(log); err != nil {
			return err
		}
	}
	return nil
}

func parseTick(record []string, field func([]string, string) string) (Tick, error) {
	var tick Tick
	var err error

	ts := field(record, "timestamp")
	if tick.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
		sec, serr := strconv.ParseInt(ts, 10, 64)
		if serr != nil {
			return Tick{}, fmt.Errorf("bad timestamp %q", ts)
		}
		tick.Timestamp = time.Unix(sec, 0)
	}
	tick.Ticker = field(record, "ticker")

	st := score.MatchState{Server: score.PlayerA}
	if field(record, "server") == "B" {
		st.Server = score.PlayerB
	}
	st.TiebreakFirstServer = st.Server

	intField := func(name string) (int, error) {
		v := field(record, name)
		if v == "" {
			return 0, nil
		}
		return strconv.Atoi(v)
	}
	if st.SetsA, err = intField("sets_a"); err != nil {
		return Tick{}, fmt.Errorf("bad sets_a: %w", err)
	}
	if st.SetsB, err = intField("sets_b"); err != nil {
		return Tick{}, fmt.Errorf("bad sets_b: %w", err)
	}
	if st.GamesA, err = intField("games_a"); err != nil {
		return Tick{}, fmt.Errorf("bad games_a: %w", err)
	}
	if st.GamesB, err = intField("games_b"); err != nil {
		return Tick{}, fmt.Errorf("bad games_b: %w", err)
	}

	if st.GamesA == score.TiebreakGames && st.GamesB == score.TiebreakGames &&
		(field(record, "tb_points_a") != "" || field(record, "tb_points_b") != "") {
		st.Tiebreak = true
		if st.TiebreakPointsA, err = intField("tb_points_a"); err != nil {
			return Tick{}, fmt.Errorf("bad tb_points_a: %w", err)
		}
		if st.TiebreakPointsB, err = intField("tb_points_b"); err != nil {
			return Tick{}, fmt.Errorf("bad tb_points_b: %w", err)
		}
	} else {
		if st.PointsA, err = score.ParsePoint(field(record, "point_a")); err != nil {
			return Tick{}, fmt.Errorf("bad point_a: %w", err)
		}
		if st.PointsB, err = score.ParsePoint(field(record, "point_b")); err != nil {
			return Tick{}, fmt.Errorf("bad point_b: %w", err)
		}
	}

	if tick.State, err = score.New(st); err != nil {
		return Tick{}, err
	}

	bid, err := intField("yes_bid")
	if err != nil {
		return Tick{}, fmt.Errorf("bad yes_bid: %w", err)
	}
	ask, err := intField("yes_ask")
	if err != nil {
		return Tick{}, fmt.Errorf("bad yes_ask: %w", err)
	}
	tick.YesBid = int64(bid)
	tick.YesAsk = int64(ask)
	if bid > 0 && ask > 0 {
		tick.MidCents = float64(bid+ask) / 2
	}
	return tick, nil
}

// Run executes the backtest with the given strategy.
func (bt *Backtest) Run(ctx context.Context, strategy Strategy) (*Result, error) {
	allTicks := make([]Tick, 0)
	for _, log := range bt.logs {
		allTicks = append(allTicks, log.Ticks...)
	}
	if len(allTicks) == 0 {
		return nil, fmt.Errorf("no match logs loaded")
	}
	sort.Slice(allTicks, func(i, j int) bool {
		return allTicks[i].Timestamp.Before(allTicks[j].Timestamp)
	})

	start := allTicks[0].Timestamp
	end := allTicks[len(allTicks)-1].Timestamp
	bt.currentTime = start
	strategy.OnStart(ctx, bt)

	for _, tick := range allTicks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bt.currentTime = tick.Timestamp
		rs, ok := bt.replays[tick.Ticker]
		if !ok {
			continue
		}
		bt.applyTick(rs, tick)

		strategy.OnTick(ctx, bt, tick)
		bt.recordEquity()
	}

	strategy.OnEnd(ctx, bt)

	for _, rs := range bt.replays {
		bt.settle(rs)
	}

	return bt.calculateResult(start, end), nil
}

func (bt *Backtest) applyTick(rs *replayState, tick Tick) {
	rs.state = tick.State
	rs.haveState = true

	if game, ok := rs.tracker.Observe(tick.State); ok {
		rs.estimator.ObserveGame(game)
	}

	pA, pB := rs.estimator.Probabilities()
	rs.fairCents = rs.pricer.FairPriceCents(tick.State, pA, pB, score.PlayerA)

	if tick.MidCents > 0 {
		rs.lastMid = tick.MidCents
		rs.lastBid = tick.YesBid
		rs.lastAsk = tick.YesAsk
		bt.engine.MarkPrice(tick.Ticker, decimal.NewFromFloat(tick.MidCents))
	}
}

// settle closes out a match at its recorded outcome. Logs whose final
// tick does not decide the match and carry no explicit outcome are
// left unsettled.
func (bt *Backtest) settle(rs *replayState) {
	homeWon, known := rs.outcome()
	if !known {
		return
	}
	winner := paper.SideNo
	if homeWon {
		winner = paper.SideYes
	}
	if _, ok := bt.engine.GetPosition(rs.log.Ticker); !ok {
		return
	}
	if _, err := bt.engine.Settle(rs.log.Ticker, winner); err == nil {
		bt.recordEquity()
	}
}

func (rs *replayState) outcome() (homeWon, known bool) {
	if rs.log.HomeWon != nil {
		return *rs.log.HomeWon, true
	}
	if !rs.haveState {
		return false, false
	}
	w, ok := rs.state.Winner(rs.log.BestOfSets)
	return w == score.PlayerA, ok
}

func (bt *Backtest) recordEquity() {
	equity := bt.engine.GetBalance()
	for _, pos := range bt.engine.GetPositions() {
		equity = equity.Add(pos.UnrealizedPnL)
	}

	if equity.GreaterThan(bt.peakEquity) {
		bt.peakEquity = equity
	}
	drawdown := decimal.Zero
	if bt.peakEquity.IsPositive() {
		drawdown = bt.peakEquity.Sub(equity).Div(bt.peakEquity)
	}
	if drawdown.GreaterThan(bt.maxDrawdown) {
		bt.maxDrawdown = drawdown
	}

	bt.equityCurve = append(bt.equityCurve, EquityPoint{
		Timestamp: bt.currentTime,
		Equity:    equity,
		Drawdown:  drawdown,
	})
}

func (bt *Backtest) calculateResult(start, end time.Time) *Result {
	stats := bt.engine.GetStats()

	result := &Result{
		StartTime:      start,
		EndTime:        end,
		Duration:       end.Sub(start),
		InitialBalance: bt.config.InitialBalanceCents,
		FinalBalance:   bt.engine.GetBalance(),
		TotalPnL:       stats.TotalPnL,
		TotalTrades:    stats.TotalTrades,
		WinningTrades:  stats.WinningTrades,
		LosingTrades:   stats.LosingTrades,
		WinRate:        stats.WinRate,
		MaxDrawdown:    bt.maxDrawdown,
		TotalVolume:    stats.TotalVolume,
		TotalFees:      stats.TotalFees,
		Matches:        len(bt.logs),
		Trades:         bt.trades,
		EquityCurve:    bt.equityCurve,
	}

	if bt.config.InitialBalanceCents.IsPositive() {
		result.TotalReturn = result.TotalPnL.
			Div(bt.config.InitialBalanceCents).
			Mul(decimal.NewFromInt(100))
	}
	return result
}

// --- Trading methods for strategies ---

// CurrentTime returns the current simulated time.
func (bt *Backtest) CurrentTime() time.Time {
	return bt.currentTime
}

// Balance returns the current balance in cents.
func (bt *Backtest) Balance() decimal.Decimal {
	return bt.engine.GetBalance()
}

// Position returns the position for a ticker.
func (bt *Backtest) Position(ticker string) (*paper.Position, bool) {
	return bt.engine.GetPosition(ticker)
}

// Positions returns all positions.
func (bt *Backtest) Positions() []*paper.Position {
	return bt.engine.GetPositions()
}

// Buy buys contracts on the home-player side at priceCents.
func (bt *Backtest) Buy(ticker string, contracts int64, priceCents decimal.Decimal) error {
	_, err := bt.engine.Buy(ticker, paper.SideYes, contracts, priceCents)
	return err
}

// Sell sells contracts at priceCents.
func (bt *Backtest) Sell(ticker string, contracts int64, priceCents decimal.Decimal) error {
	_, err := bt.engine.Sell(ticker, contracts, priceCents)
	return err
}

// FairPrice returns the model's current fair price for a ticker.
func (bt *Backtest) FairPrice(ticker string) (float64, bool) {
	rs, ok := bt.replays[ticker]
	if !ok || !rs.haveState {
		return 0, false
	}
	return rs.fairCents, true
}

// MarketPrice returns the last seen market quote for a ticker.
func (bt *Backtest) MarketPrice(ticker string) (bid, ask int64, mid float64, ok bool) {
	rs, found := bt.replays[ticker]
	if !found || rs.lastMid == 0 {
		return 0, 0, 0, false
	}
	return rs.lastBid, rs.lastAsk, rs.lastMid, true
}

// ServeProbabilities returns the current serve model for a ticker.
func (bt *Backtest) ServeProbabilities(ticker string) (pA, pB float64, ok bool) {
	rs, found := bt.replays[ticker]
	if !found {
		return 0, 0, false
	}
	pA, pB = rs.estimator.Probabilities()
	return pA, pB, true
}
