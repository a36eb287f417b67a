// Package orchestrator coordinates the live trading workflow: poll
// scores, reprice, generate signals, check risk, execute, monitor.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/courtedge/tennis-agents/pkg/sportscore"
	"github.com/courtedge/tennis-agents/pkg/tennis/serve"
	"github.com/courtedge/tennis-agents/pkg/trader/decision"
	"github.com/courtedge/tennis-agents/pkg/trader/metrics"
	"github.com/courtedge/tennis-agents/pkg/trader/paper"
	"github.com/courtedge/tennis-agents/pkg/trader/policy"
	"github.com/courtedge/tennis-agents/pkg/trader/streaming"

	"github.com/shopspring/decimal"
)

// Stage represents a stage in the trading workflow.
type Stage string

const (
	// Core workflow stages
	StageScorePoll      Stage = "score_poll"
	StagePricing        Stage = "pricing"
	StageSignalGen      Stage = "signal_generation"
	StageRiskCheck      Stage = "risk_check"
	StageOrderExecution Stage = "order_execution"
	StageMonitoring     Stage = "monitoring"
)

// StageResult holds the result of a stage execution.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ScoreFeed supplies live tennis events.
type ScoreFeed interface {
	LiveTennisEvents(ctx context.Context) ([]sportscore.Event, error)
}

// Quote is the market's current pricing for the home-player-wins side.
// Prices are in cents.
type Quote struct {
	YesBid int64
	YesAsk int64
	Mid    float64
}

// MarketSource binds matches to markets and quotes them.
type MarketSource interface {
	// ResolveTicker finds the market for a match, keyed on the home
	// player's name. ok is false when no open market exists.
	ResolveTicker(ctx context.Context, homeName, awayName string) (ticker string, ok bool, err error)
	Quote(ctx context.Context, ticker string) (Quote, error)
}

// WorkflowConfig configures the trading workflow.
type WorkflowConfig struct {
	// Model
	BestOfSets   int
	Priors       serve.Priors
	AdaptiveBase float64

	// Signals
	Decision decision.Config

	// Timing
	PollInterval    time.Duration
	MonitorInterval time.Duration

	// StaleAfter drops a session whose match has left the live feed
	// without completing (retired, suspended, feed loss).
	StaleAfter time.Duration
}

// DefaultWorkflowConfig returns default configuration.
func DefaultWorkflowConfig() *WorkflowConfig {
	return &WorkflowConfig{
		BestOfSets:      3,
		Priors:          serve.DefaultPriors(),
		AdaptiveBase:    serve.DefaultAdaptiveBase,
		Decision:        decision.DefaultConfig(),
		PollInterval:    5 * time.Second,
		MonitorInterval: 15 * time.Second,
		StaleAfter:      10 * time.Minute,
	}
}

// Orchestrator coordinates the trading workflow.
type Orchestrator struct {
	config       *WorkflowConfig
	feed         ScoreFeed
	markets      MarketSource
	decider      *decision.Engine
	policyEngine *policy.Engine
	paperEngine  *paper.Engine
	metrics      *metrics.TradingMetrics
	hub          *streaming.Hub

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	// State
	sessions    map[int64]*Session
	lastResults map[Stage]*StageResult

	// Callbacks
	onStageComplete func(*StageResult)
	onDecision      func(*Session, decision.Decision)
	onError         func(error)
}

// NewOrchestrator creates a new workflow orchestrator. The hub may be
// nil when no websocket clients are served.
func NewOrchestrator(
	config *WorkflowConfig,
	feed ScoreFeed,
	markets MarketSource,
	policyEngine *policy.Engine,
	paperEngine *paper.Engine,
	tm *metrics.TradingMetrics,
	hub *streaming.Hub,
) (*Orchestrator, error) {
	if config == nil {
		config = DefaultWorkflowConfig()
	}
	if feed == nil || markets == nil {
		return nil, fmt.Errorf("orchestrator: feed and market source are required")
	}
	if policyEngine == nil || paperEngine == nil {
		return nil, fmt.Errorf("orchestrator: policy and paper engines are required")
	}
	decider, err := decision.NewEngine(config.Decision)
	if err != nil {
		return nil, err
	}
	if tm == nil {
		tm = metrics.Default()
	}

	return &Orchestrator{
		config:       config,
		feed:         feed,
		markets:      markets,
		decider:      decider,
		policyEngine: policyEngine,
		paperEngine:  paperEngine,
		metrics:      tm,
		hub:          hub,
		stopCh:       make(chan struct{}),
		sessions:     make(map[int64]*Session),
		lastResults:  make(map[Stage]*StageResult),
	}, nil
}

// OnStageComplete sets a callback for stage completions.
func (o *Orchestrator) OnStageComplete(fn func(*StageResult)) {
	o.onStageComplete = fn
}

// OnDecision sets a callback for non-trivial trading decisions.
func (o *Orchestrator) OnDecision(fn func(*Session, decision.Decision)) {
	o.onDecision = fn
}

// OnError sets a callback for errors.
func (o *Orchestrator) OnError(fn func(error)) {
	o.onError = fn
}

// Start starts the trading workflow.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	// Initial poll so Status has something to show immediately.
	if err := o.runStage(ctx, StageScorePoll); err != nil {
		o.handleError(fmt.Errorf("initial score poll failed: %w", err))
	}

	go o.tradeLoop(ctx)
	go o.monitorLoop(ctx)

	return nil
}

// Stop stops the trading workflow.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		close(o.stopCh)
		o.running = false
	}
}

// IsRunning returns true if the orchestrator is running.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// RunOnce executes a single workflow cycle.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	stages := []Stage{
		StageScorePoll,
		StagePricing,
		StageSignalGen,
		StageRiskCheck,
		StageOrderExecution,
		StageMonitoring,
	}

	for _, stage := range stages {
		if err := o.runStage(ctx, stage); err != nil {
			return fmt.Errorf("stage %s failed: %w", stage, err)
		}
	}

	return nil
}

// GetSessions returns snapshots of all active sessions.
func (o *Orchestrator) GetSessions() []SessionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]SessionStatus, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s.status())
	}
	return out
}

// GetSession returns the snapshot for one event.
func (o *Orchestrator) GetSession(eventID int64) (SessionStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s, ok := o.sessions[eventID]
	if !ok {
		return SessionStatus{}, false
	}
	return s.status(), true
}

// --- Background Loops ---

func (o *Orchestrator) tradeLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			stages := []Stage{
				StageScorePoll,
				StagePricing,
				StageSignalGen,
				StageRiskCheck,
				StageOrderExecution,
			}

			for _, stage := range stages {
				if err := o.runStage(ctx, stage); err != nil {
					o.handleError(fmt.Errorf("stage %s failed: %w", stage, err))
					break
				}
			}
		}
	}
}

func (o *Orchestrator) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if err := o.runStage(ctx, StageMonitoring); err != nil {
				o.handleError(fmt.Errorf("monitoring failed: %w", err))
			}
		}
	}
}

// --- Stage Execution ---

func (o *Orchestrator) runStage(ctx context.Context, stage Stage) error {
	start := time.Now()
	var err error
	var data interface{}

	switch stage {
	case StageScorePoll:
		data, err = o.executeScorePoll(ctx)
	case StagePricing:
		data, err = o.executePricing(ctx)
	case StageSignalGen:
		data, err = o.executeSignalGen(ctx)
	case StageRiskCheck:
		data, err = o.executeRiskCheck(ctx)
	case StageOrderExecution:
		data, err = o.executeOrderExecution(ctx)
	case StageMonitoring:
		data, err = o.executeMonitoring(ctx)
	default:
		err = fmt.Errorf("unknown stage: %s", stage)
	}

	result := &StageResult{
		Stage:     stage,
		Success:   err == nil,
		Data:      data,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	o.mu.Lock()
	o.lastResults[stage] = result
	o.mu.Unlock()

	o.metrics.RecordStage(string(stage), result.Duration.Seconds())
	if o.onStageComplete != nil {
		o.onStageComplete(result)
	}

	return err
}

// executeScorePoll fetches the live feed, binds new matches to markets
// and folds score updates into each session's tracker and serve model.
func (o *Orchestrator) executeScorePoll(ctx context.Context) (interface{}, error) {
	events, err := o.feed.LiveTennisEvents(ctx)
	if err != nil {
		o.metrics.RecordFeedPoll("error")
		return nil, fmt.Errorf("live events failed: %w", err)
	}
	o.metrics.RecordFeedPoll("ok")

	now := time.Now()
	var created, updated, games, parseErrs int

	for i := range events {
		ev := &events[i]

		o.mu.RLock()
		s, known := o.sessions[ev.ID]
		o.mu.RUnlock()

		if !known {
			ticker, ok, err := o.markets.ResolveTicker(ctx, ev.HomeTeam.Name, ev.AwayTeam.Name)
			if err != nil {
				o.handleError(fmt.Errorf("resolve market for %s vs %s: %w", ev.HomeTeam.Name, ev.AwayTeam.Name, err))
				continue
			}
			if !ok {
				continue
			}
			s, err = newSession(ev, ticker, o.config)
			if err != nil {
				return nil, err
			}
			o.mu.Lock()
			o.sessions[ev.ID] = s
			o.mu.Unlock()
			created++
		}

		o.mu.Lock()
		game, closed, err := s.observe(ev, o.config.BestOfSets, now)
		o.mu.Unlock()
		if err != nil {
			parseErrs++
			o.metrics.RecordParseFailure()
			continue
		}
		updated++

		if closed {
			games++
			o.metrics.RecordGameObserved(s.MatchName())
			o.metrics.UpdateServeModel(s.MatchName(), game.Server.String(), s.estimator.CurrentP(game.Server))
		}
		if o.hub != nil {
			o.hub.BroadcastScore(s.MatchName(), s.state)
		}
	}

	o.mu.RLock()
	o.metrics.UpdateActiveMatches(len(o.sessions))
	o.mu.RUnlock()

	return map[string]interface{}{
		"events":       len(events),
		"new_sessions": created,
		"updated":      updated,
		"games_closed": games,
		"parse_errors": parseErrs,
	}, nil
}

// executePricing reprices every session and refreshes its market quote.
func (o *Orchestrator) executePricing(ctx context.Context) (interface{}, error) {
	o.mu.Lock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		if s.haveState && !s.completed {
			sessions = append(sessions, s)
		}
	}
	o.mu.Unlock()

	var priced int
	for _, s := range sessions {
		start := time.Now()

		o.mu.Lock()
		fair, err := s.price()
		o.mu.Unlock()
		if err != nil {
			o.metrics.RecordPricingFailure("model")
			continue
		}

		q, err := o.markets.Quote(ctx, s.Ticker)
		if err != nil {
			o.metrics.RecordPricingFailure("quote")
			o.handleError(fmt.Errorf("quote %s: %w", s.Ticker, err))
			continue
		}

		o.mu.Lock()
		s.quote = q
		s.marketCents = q.Mid
		s.priced = q.Mid > 0
		o.mu.Unlock()

		if q.Mid > 0 {
			priced++
			o.metrics.RecordPricing(s.Ticker, fair, q.Mid, time.Since(start).Seconds())
			o.paperEngine.MarkPrice(s.Ticker, decimal.NewFromFloat(q.Mid))
			if o.hub != nil {
				o.hub.BroadcastPrice(s.Ticker, fair, q.Mid)
			}
		}
	}

	return map[string]interface{}{"priced": priced}, nil
}

// executeSignalGen evaluates the edge on every priced session.
func (o *Orchestrator) executeSignalGen(ctx context.Context) (interface{}, error) {
	bankroll := o.paperEngine.GetBalance()

	o.mu.Lock()
	defer o.mu.Unlock()

	var signals int
	for _, s := range o.sessions {
		s.pending = nil
		s.approved = false
		if !s.priced || s.completed {
			continue
		}

		d, err := o.decider.Evaluate(s.fairCents, s.marketCents, bankroll)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", s.Ticker, err)
		}
		o.metrics.RecordSignal(string(d.Action), d.EdgeCents)
		if d.Action == decision.ActionNoTrade || d.Contracts == 0 {
			continue
		}

		s.pending = &d
		signals++
		if o.onDecision != nil {
			o.onDecision(s, d)
		}
		if o.hub != nil {
			o.hub.BroadcastSignal(map[string]interface{}{
				"ticker":     s.Ticker,
				"match":      s.MatchName(),
				"action":     string(d.Action),
				"edge_cents": d.EdgeCents,
				"contracts":  d.Contracts,
			})
		}
	}

	return map[string]interface{}{"signals": signals}, nil
}

// executeRiskCheck runs every pending decision through the policy
// engine. Sells are additionally capped at the held position.
func (o *Orchestrator) executeRiskCheck(ctx context.Context) (interface{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var approved, rejected int
	for _, s := range o.sessions {
		if s.pending == nil {
			continue
		}
		d := s.pending

		if d.Action == decision.ActionSell {
			held := o.policyEngine.GetContracts(s.Ticker)
			if held == 0 {
				s.pending = nil
				continue
			}
			if d.Contracts > held {
				d.Contracts = held
			}
		}

		price := o.executionPrice(s, d.Action)
		if err := o.policyEngine.CheckOrder(s.Ticker, d.Contracts, price); err != nil {
			o.metrics.RecordPolicyViolation(string(d.Action))
			s.pending = nil
			rejected++
			continue
		}
		s.approved = true
		approved++
	}

	return map[string]interface{}{"approved": approved, "rejected": rejected}, nil
}

// executeOrderExecution fills approved decisions on the paper engine.
func (o *Orchestrator) executeOrderExecution(ctx context.Context) (interface{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var filled int
	for _, s := range o.sessions {
		if s.pending == nil || !s.approved {
			continue
		}
		d := s.pending
		s.pending = nil
		s.approved = false

		price := o.executionPrice(s, d.Action)
		var (
			trade *paper.Trade
			err   error
			isBuy = d.Action == decision.ActionBuy
		)
		if isBuy {
			trade, err = o.paperEngine.Buy(s.Ticker, paper.SideYes, d.Contracts, price)
		} else {
			trade, err = o.paperEngine.Sell(s.Ticker, d.Contracts, price)
		}
		if err != nil {
			o.handleError(fmt.Errorf("%s %d %s: %w", d.Action, d.Contracts, s.Ticker, err))
			continue
		}
		filled++

		o.policyEngine.RecordFill(s.Ticker, d.Contracts, price, isBuy, trade.PnLCents)
		volume := price.Mul(decimal.NewFromInt(d.Contracts))
		o.metrics.RecordTrade(string(d.Action), s.Ticker,
			metrics.DecimalToFloat64(volume), metrics.DecimalToFloat64(trade.FeeCents))
		if !isBuy {
			o.metrics.RecordRealizedPnL(s.Ticker, metrics.DecimalToFloat64(trade.PnLCents))
		}
		if pos, ok := o.paperEngine.GetPosition(s.Ticker); ok {
			o.metrics.UpdatePosition(s.Ticker, string(pos.Side),
				float64(pos.Contracts), metrics.DecimalToFloat64(pos.UnrealizedPnL))
		} else {
			o.metrics.UpdatePosition(s.Ticker, string(paper.SideYes), 0, 0)
		}
		if o.hub != nil {
			o.hub.BroadcastTrade(trade)
		}
	}

	return map[string]interface{}{"filled": filled}, nil
}

// executeMonitoring settles completed matches, drops stale sessions
// and publishes account and policy gauges.
func (o *Orchestrator) executeMonitoring(ctx context.Context) (interface{}, error) {
	now := time.Now()

	o.mu.Lock()
	var settled, dropped int
	for id, s := range o.sessions {
		if s.completed {
			o.settleLocked(s)
			settled++
			delete(o.sessions, id)
			continue
		}
		if o.config.StaleAfter > 0 && s.haveState && now.Sub(s.lastSeen) > o.config.StaleAfter {
			dropped++
			delete(o.sessions, id)
		}
	}
	active := len(o.sessions)
	o.mu.Unlock()

	balance := o.paperEngine.GetBalance()
	exposure := o.policyEngine.GetTotalExposure()
	o.metrics.UpdateAccount("paper",
		metrics.DecimalToFloat64(balance), metrics.DecimalToFloat64(exposure))
	ps := o.policyEngine.Status()
	o.metrics.UpdatePolicy(ps.InCooldown, ps.DailyOrders)
	o.metrics.UpdateActiveMatches(active)

	if o.hub != nil {
		o.hub.BroadcastStatus(o.Status())
	}

	return map[string]interface{}{
		"settled": settled,
		"dropped": dropped,
		"active":  active,
	}, nil
}

// settleLocked settles a completed session's market. Caller holds o.mu.
func (o *Orchestrator) settleLocked(s *Session) {
	winner := paper.SideNo
	if s.winnerIsHome(o.config.BestOfSets) {
		winner = paper.SideYes
	}

	held := int64(0)
	if pos, ok := o.paperEngine.GetPosition(s.Ticker); ok {
		held = pos.Contracts
	}

	pnl, err := o.paperEngine.Settle(s.Ticker, winner)
	if err != nil {
		o.handleError(fmt.Errorf("settle %s: %w", s.Ticker, err))
		return
	}

	if held > 0 {
		// Release the position from the policy books. Settlement is a
		// forced exit at 0 or 100.
		settlePrice := decimal.Zero
		if winner == paper.SideYes {
			settlePrice = decimal.NewFromInt(100)
		}
		o.policyEngine.RecordFill(s.Ticker, held, settlePrice, false, pnl)
		o.metrics.RecordRealizedPnL(s.Ticker, metrics.DecimalToFloat64(pnl))
		o.metrics.UpdatePosition(s.Ticker, string(paper.SideYes), 0, 0)
	}
	if o.hub != nil {
		o.hub.BroadcastSettlement(s.Ticker, metrics.DecimalToFloat64(pnl))
	}
}

// executionPrice picks the quote side a taker order would cross.
func (o *Orchestrator) executionPrice(s *Session, action decision.Action) decimal.Decimal {
	if action == decision.ActionBuy && s.quote.YesAsk > 0 {
		return decimal.NewFromInt(s.quote.YesAsk)
	}
	if action == decision.ActionSell && s.quote.YesBid > 0 {
		return decimal.NewFromInt(s.quote.YesBid)
	}
	return decimal.NewFromFloat(s.marketCents)
}

func (o *Orchestrator) handleError(err error) {
	if o.onError != nil {
		o.onError(err)
	}
	if o.hub != nil {
		o.hub.BroadcastError(err, "orchestrator")
	}
}

// --- Status ---

// Status is a point-in-time snapshot of the whole workflow.
type Status struct {
	Running       bool                   `json:"running"`
	ActiveMatches int                    `json:"active_matches"`
	Sessions      []SessionStatus        `json:"sessions"`
	Policy        policy.Status          `json:"policy"`
	Account       *paper.AccountStats    `json:"account"`
	BalanceCents  decimal.Decimal        `json:"balance_cents"`
	LastResults   map[Stage]*StageResult `json:"last_results"`
}

// Status returns the current workflow status.
func (o *Orchestrator) Status() *Status {
	o.mu.RLock()
	sessions := make([]SessionStatus, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s.status())
	}
	results := make(map[Stage]*StageResult, len(o.lastResults))
	for k, v := range o.lastResults {
		results[k] = v
	}
	running := o.running
	o.mu.RUnlock()

	return &Status{
		Running:       running,
		ActiveMatches: len(sessions),
		Sessions:      sessions,
		Policy:        o.policyEngine.Status(),
		Account:       o.paperEngine.GetStats(),
		BalanceCents:  o.paperEngine.GetBalance(),
		LastResults:   results,
	}
}
