// Package policy provides risk management and policy enforcement for
// live tennis market trading.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLimits defines the risk parameters for trading binary tennis
// contracts. Monetary limits are cents; size limits are contract counts.
type RiskLimits struct {
	// Position limits
	MaxContractsPerMarket int64           // Max contracts held in one market
	MaxExposureCents      decimal.Decimal // Max cost basis across all markets

	// Daily limits
	MaxDailyLossCents   decimal.Decimal // Max realized loss per day
	MaxDailyVolumeCents decimal.Decimal // Max traded notional per day
	MaxDailyOrders      int             // Max orders per day

	// Per-order limits
	MaxOrderContracts int64 // Max contracts in a single order
	MinOrderContracts int64 // Min contracts in a single order

	// Time limits
	CooldownAfterLoss  time.Duration // Pause after a realized loss
	MaxSessionDuration time.Duration // Max continuous trading session

	// Market restrictions
	AllowedTickers []string // If set, only trade these markets
	BlockedTickers []string // Markets to never trade
}

// DefaultRiskLimits returns conservative defaults for a $1000 bankroll.
func DefaultRiskLimits() *RiskLimits {
	return &RiskLimits{
		MaxContractsPerMarket: 50,
		MaxExposureCents:      decimal.NewFromInt(50000), // $500

		MaxDailyLossCents:   decimal.NewFromInt(10000),  // $100
		MaxDailyVolumeCents: decimal.NewFromInt(200000), // $2000 notional
		MaxDailyOrders:      100,

		MaxOrderContracts: 25,
		MinOrderContracts: 1,

		CooldownAfterLoss:  15 * time.Minute,
		MaxSessionDuration: 12 * time.Hour,
	}
}

// TightRiskLimits returns very conservative limits for testing.
func TightRiskLimits() *RiskLimits {
	return &RiskLimits{
		MaxContractsPerMarket: 10,
		MaxExposureCents:      decimal.NewFromInt(5000),

		MaxDailyLossCents:   decimal.NewFromInt(1000),
		MaxDailyVolumeCents: decimal.NewFromInt(20000),
		MaxDailyOrders:      20,

		MaxOrderContracts: 5,
		MinOrderContracts: 1,

		CooldownAfterLoss:  30 * time.Minute,
		MaxSessionDuration: 2 * time.Hour,
	}
}

// Engine enforces risk limits and tracks trading state.
type Engine struct {
	limits *RiskLimits

	mu           sync.RWMutex
	contracts    map[string]int64           // ticker -> held contracts
	exposure     map[string]decimal.Decimal // ticker -> cost basis in cents
	dailyLoss    decimal.Decimal
	dailyVolume  decimal.Decimal
	dailyOrders  int
	lastLossTime time.Time
	sessionStart time.Time
	lastTradeDay int // day of year
}

// NewEngine creates a policy engine with the given limits.
func NewEngine(limits *RiskLimits) *Engine {
	if limits == nil {
		limits = DefaultRiskLimits()
	}
	return &Engine{
		limits:       limits,
		contracts:    make(map[string]int64),
		exposure:     make(map[string]decimal.Decimal),
		sessionStart: time.Now(),
		lastTradeDay: time.Now().YearDay(),
	}
}

// CheckOrder validates a prospective buy against the limits. priceCents
// is the per-contract cost.
func (p *Engine) CheckOrder(ticker string, contracts int64, priceCents decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDailyIfNeeded()

	if err := p.checkTickerAllowed(ticker); err != nil {
		return err
	}

	if contracts > p.limits.MaxOrderContracts {
		return fmt.Errorf("order of %d contracts exceeds max %d", contracts, p.limits.MaxOrderContracts)
	}
	if contracts < p.limits.MinOrderContracts {
		return fmt.Errorf("order of %d contracts below min %d", contracts, p.limits.MinOrderContracts)
	}

	if p.dailyOrders >= p.limits.MaxDailyOrders {
		return fmt.Errorf("daily order limit reached: %d", p.limits.MaxDailyOrders)
	}

	notional := decimal.NewFromInt(contracts).Mul(priceCents)
	if p.dailyVolume.Add(notional).GreaterThan(p.limits.MaxDailyVolumeCents) {
		return fmt.Errorf("would exceed daily volume limit %s cents", p.limits.MaxDailyVolumeCents)
	}
	if p.dailyLoss.GreaterThanOrEqual(p.limits.MaxDailyLossCents) {
		return fmt.Errorf("daily loss limit reached: %s cents", p.dailyLoss)
	}

	if p.contracts[ticker]+contracts > p.limits.MaxContractsPerMarket {
		return fmt.Errorf("position in %s would exceed %d contracts", ticker, p.limits.MaxContractsPerMarket)
	}

	if p.totalExposure().Add(notional).GreaterThan(p.limits.MaxExposureCents) {
		return fmt.Errorf("total exposure would exceed %s cents", p.limits.MaxExposureCents)
	}

	if !p.lastLossTime.IsZero() && time.Since(p.lastLossTime) < p.limits.CooldownAfterLoss {
		remaining := p.limits.CooldownAfterLoss - time.Since(p.lastLossTime)
		return fmt.Errorf("in cooldown after loss, %v remaining", remaining.Round(time.Second))
	}

	if time.Since(p.sessionStart) > p.limits.MaxSessionDuration {
		return fmt.Errorf("max session duration exceeded: %v", p.limits.MaxSessionDuration)
	}

	return nil
}

// RecordFill records an executed trade. Buys grow the position and
// exposure; sells shrink them. A negative pnl starts the loss cooldown.
func (p *Engine) RecordFill(ticker string, contracts int64, priceCents decimal.Decimal, isBuy bool, pnl decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetDailyIfNeeded()

	notional := decimal.NewFromInt(contracts).Mul(priceCents)
	p.dailyOrders++
	p.dailyVolume = p.dailyVolume.Add(notional)

	if isBuy {
		p.contracts[ticker] += contracts
		p.exposure[ticker] = p.exposure[ticker].Add(notional)
	} else {
		held := p.contracts[ticker]
		if contracts >= held {
			delete(p.contracts, ticker)
			delete(p.exposure, ticker)
		} else {
			// Release cost basis proportionally to contracts sold.
			released := p.exposure[ticker].Mul(decimal.NewFromInt(contracts)).Div(decimal.NewFromInt(held))
			p.contracts[ticker] = held - contracts
			p.exposure[ticker] = p.exposure[ticker].Sub(released)
		}
	}

	if pnl.LessThan(decimal.Zero) {
		p.dailyLoss = p.dailyLoss.Add(pnl.Abs())
		p.lastLossTime = time.Now()
	}
}

// GetContracts returns the tracked position size for a ticker.
func (p *Engine) GetContracts(ticker string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.contracts[ticker]
}

// GetTotalExposure returns the cost basis across all markets in cents.
func (p *Engine) GetTotalExposure() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalExposure()
}

// GetDailyStats returns daily trading statistics.
func (p *Engine) GetDailyStats() (loss, volume decimal.Decimal, orders int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dailyLoss, p.dailyVolume, p.dailyOrders
}

// ResetSession restarts the session timer.
func (p *Engine) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionStart = time.Now()
}

func (p *Engine) resetDailyIfNeeded() {
	now := time.Now()
	if p.lastTradeDay != now.YearDay() {
		p.dailyLoss = decimal.Zero
		p.dailyVolume = decimal.Zero
		p.dailyOrders = 0
		p.lastTradeDay = now.YearDay()
	}
}

func (p *Engine) totalExposure() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.exposure {
		total = total.Add(e)
	}
	return total
}

func (p *Engine) checkTickerAllowed(ticker string) error {
	for _, blocked := range p.limits.BlockedTickers {
		if ticker == blocked {
			return fmt.Errorf("market %s is blocked", ticker)
		}
	}

	if len(p.limits.AllowedTickers) > 0 {
		for _, allowed := range p.limits.AllowedTickers {
			if ticker == allowed {
				return nil
			}
		}
		return fmt.Errorf("market %s is not in allowed list", ticker)
	}

	return nil
}

// Status summarizes the current policy state.
type Status struct {
	TotalExposure   string `json:"total_exposure_cents"`
	MaxExposure     string `json:"max_exposure_cents"`
	DailyLoss       string `json:"daily_loss_cents"`
	MaxDailyLoss    string `json:"max_daily_loss_cents"`
	DailyVolume     string `json:"daily_volume_cents"`
	MaxDailyVolume  string `json:"max_daily_volume_cents"`
	DailyOrders     int    `json:"daily_orders"`
	MaxDailyOrders  int    `json:"max_daily_orders"`
	SessionDuration string `json:"session_duration"`
	MaxSessionDur   string `json:"max_session_duration"`
	InCooldown      bool   `json:"in_cooldown"`
	CooldownRemain  string `json:"cooldown_remaining,omitempty"`
}

// Status returns the current policy status.
func (p *Engine) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{
		TotalExposure:   p.totalExposure().String(),
		MaxExposure:     p.limits.MaxExposureCents.String(),
		DailyLoss:       p.dailyLoss.String(),
		MaxDailyLoss:    p.limits.MaxDailyLossCents.String(),
		DailyVolume:     p.dailyVolume.String(),
		MaxDailyVolume:  p.limits.MaxDailyVolumeCents.String(),
		DailyOrders:     p.dailyOrders,
		MaxDailyOrders:  p.limits.MaxDailyOrders,
		SessionDuration: time.Since(p.sessionStart).Round(time.Second).String(),
		MaxSessionDur:   p.limits.MaxSessionDuration.String(),
	}

	if !p.lastLossTime.IsZero() && time.Since(p.lastLossTime) < p.limits.CooldownAfterLoss {
		status.InCooldown = true
		status.CooldownRemain = (p.limits.CooldownAfterLoss - time.Since(p.lastLossTime)).Round(time.Second).String()
	}

	return status
}
