package orchestrator

import (
	"fmt"
	"time"

	"github.com/courtedge/tennis-agents/pkg/sportscore"
	"github.com/courtedge/tennis-agents/pkg/tennis/model"
	"github.com/courtedge/tennis-agents/pkg/tennis/score"
	"github.com/courtedge/tennis-agents/pkg/tennis/serve"
	"github.com/courtedge/tennis-agents/pkg/trader/decision"
)

// Session tracks one live match bound to one market. The market pays
// 100 if the home player wins. All session state is guarded by the
// orchestrator's lock; stages run sequentially.
type Session struct {
	EventID  int64
	HomeName string
	AwayName string
	Ticker   string

	tracker   *score.Tracker
	estimator *serve.Estimator
	pricer    *model.Pricer

	state     score.MatchState
	haveState bool
	lastSeen  time.Time

	fairCents   float64
	marketCents float64
	quote       Quote
	priced      bool

	pending   *decision.Decision
	approved  bool
	completed bool
}

func newSession(ev *sportscore.Event, ticker string, cfg *WorkflowConfig) (*Session, error) {
	est, err := serve.NewEstimator(cfg.Priors, cfg.AdaptiveBase)
	if err != nil {
		return nil, err
	}
	pricer, err := model.NewPricer(cfg.BestOfSets)
	if err != nil {
		return nil, err
	}
	return &Session{
		EventID:   ev.ID,
		HomeName:  ev.HomeTeam.Name,
		AwayName:  ev.AwayTeam.Name,
		Ticker:    ticker,
		tracker:   score.NewTracker(),
		estimator: est,
		pricer:    pricer,
	}, nil
}

// MatchName is the human-readable label used for logs, metrics and
// websocket events.
func (s *Session) MatchName() string {
	return fmt.Sprintf("%s vs %s", s.HomeName, s.AwayName)
}

// observe folds a fresh feed snapshot into the session. It returns the
// completed service game, if the snapshot closed one.
func (s *Session) observe(ev *sportscore.Event, bestOfSets int, now time.Time) (score.GameResult, bool, error) {
	st, err := sportscore.ParseState(ev)
	if err != nil {
		return score.GameResult{}, false, err
	}

	s.state = st
	s.haveState = true
	s.lastSeen = now
	if st.Completed(bestOfSets) {
		s.completed = true
	}

	game, ok := s.tracker.Observe(st)
	if ok {
		s.estimator.ObserveGame(game)
	}
	return game, ok, nil
}

// price reprices the session from the current score and serve model.
func (s *Session) price() (float64, error) {
	if !s.haveState {
		return 0, fmt.Errorf("no score observed yet for %s", s.MatchName())
	}
	pA, pB := s.estimator.Probabilities()
	fair := s.pricer.FairPriceCents(s.state, pA, pB, score.PlayerA)
	s.fairCents = fair
	return fair, nil
}

// winnerIsHome reports the settlement outcome. Valid only once the
// session is completed.
func (s *Session) winnerIsHome(bestOfSets int) bool {
	w, ok := s.state.Winner(bestOfSets)
	return ok && w == score.PlayerA
}

// SessionStatus is a read-only snapshot exposed via Status.
type SessionStatus struct {
	EventID     int64     `json:"event_id"`
	Match       string    `json:"match"`
	Ticker      string    `json:"ticker"`
	Score       string    `json:"score,omitempty"`
	ServeProbA  float64   `json:"serve_prob_a"`
	ServeProbB  float64   `json:"serve_prob_b"`
	FairCents   float64   `json:"fair_cents"`
	MarketCents float64   `json:"market_cents"`
	Completed   bool      `json:"completed"`
	LastSeen    time.Time `json:"last_seen"`
}

func (s *Session) status() SessionStatus {
	pA, pB := s.estimator.Probabilities()
	st := SessionStatus{
		EventID:     s.EventID,
		Match:       s.MatchName(),
		Ticker:      s.Ticker,
		ServeProbA:  pA,
		ServeProbB:  pB,
		FairCents:   s.fairCents,
		MarketCents: s.marketCents,
		Completed:   s.completed,
		LastSeen:    s.lastSeen,
	}
	if s.haveState {
		st.Score = s.state.String()
	}
	return st
}
