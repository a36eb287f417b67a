package model

import (
	"fmt"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
)

// Evaluator prices a match for one fixed pair of serve probabilities.
//
// All memo tables live on the evaluator, so the caches are implicitly
// keyed on (pA, pB): build a fresh evaluator whenever the estimator has
// been updated and stale values are impossible.
type Evaluator struct {
	pA, pB     float64 // point-win probability on own serve
	holdA      float64 // hold probability from 0-0, derived once
	holdB      float64
	bestOfSets int

	holdMemoA map[[2]int]float64
	holdMemoB map[[2]int]float64
	setMemo   map[setKey]float64
	matchMemo map[score.MatchState]float64
}

// NewEvaluator builds an evaluator for the given serve probabilities and
// match format.
func NewEvaluator(pAServe, pBServe float64, bestOfSets int) *Evaluator {
	e := &Evaluator{
		pA:         pAServe,
		pB:         pBServe,
		bestOfSets: bestOfSets,
		holdMemoA:  make(map[[2]int]float64, 16),
		holdMemoB:  make(map[[2]int]float64, 16),
		setMemo:    make(map[setKey]float64, 64),
		matchMemo:  make(map[score.MatchState]float64, 256),
	}
	e.holdA = holdFrom(pAServe, 0, 0, e.holdMemoA)
	e.holdB = holdFrom(pBServe, 0, 0, e.holdMemoB)
	return e
}

// MatchWinProbability returns the probability in [0,1] that player A wins
// the match from the given state. Completed matches short-circuit to
// exactly 0 or 1.
func (e *Evaluator) MatchWinProbability(s score.MatchState) float64 {
	need := score.SetsNeeded(e.bestOfSets)
	if s.SetsA >= need {
		return 1
	}
	if s.SetsB >= need {
		return 0
	}
	if v, ok := e.matchMemo[s]; ok {
		return v
	}

	pSetA := e.currentSetWin(s)
	v := pSetA*e.MatchWinProbability(s.AfterSetWin(score.PlayerA)) +
		(1-pSetA)*e.MatchWinProbability(s.AfterSetWin(score.PlayerB))
	e.matchMemo[s] = v
	return v
}

// currentSetWin returns the probability that A wins the set in progress,
// folding in the current game (or tiebreak) point score.
func (e *Evaluator) currentSetWin(s score.MatchState) float64 {
	if s.Tiebreak {
		return TiebreakWinProbability(e.pA, e.pB, s.TiebreakPointsA, s.TiebreakPointsB, s.TiebreakFirstServer)
	}

	server := s.Server
	returner := server.Opponent()
	pServe := e.pA
	if server == score.PlayerB {
		pServe = e.pB
	}
	pHold := holdFrom(pServe, s.Points(server), s.Points(returner), e.holdMemo(server))

	afterHold := e.setWinAfterGame(s, server)
	afterBreak := e.setWinAfterGame(s, returner)
	return pHold*afterHold + (1-pHold)*afterBreak
}

// setWinAfterGame returns P(A wins current set) once the current game has
// gone to winner, with the serve passing to the other player.
func (e *Evaluator) setWinAfterGame(s score.MatchState, winner score.Player) float64 {
	gA, gB := s.GamesA, s.GamesB
	if winner == score.PlayerA {
		gA++
	} else {
		gB++
	}
	return setFrom(e.holdA, e.holdB, e.pA, e.pB, gA, gB, s.Server.Opponent(), e.setMemo)
}

func (e *Evaluator) holdMemo(p score.Player) map[[2]int]float64 {
	if p == score.PlayerA {
		return e.holdMemoA
	}
	return e.holdMemoB
}

// MatchWinPriceCents prices player A's match win from the given state on
// the venue's 0-100 cents scale. The price for B is 100 minus the price
// for A.
func MatchWinPriceCents(s score.MatchState, pAServe, pBServe float64, bestOfSets int) float64 {
	return NewEvaluator(pAServe, pBServe, bestOfSets).MatchWinProbability(s) * 100
}

// Pricer is the engine's entry point for collaborators: it turns a match
// snapshot plus current serve probabilities into a fair price.
type Pricer struct {
	bestOfSets int
}

// NewPricer creates a pricer for a best-of-n match. bestOfSets must be a
// positive odd number.
func NewPricer(bestOfSets int) (*Pricer, error) {
	if bestOfSets <= 0 || bestOfSets%2 == 0 {
		return nil, fmt.Errorf("model: best-of-sets must be positive and odd, got %d", bestOfSets)
	}
	return &Pricer{bestOfSets: bestOfSets}, nil
}

// BestOfSets returns the configured match format.
func (p *Pricer) BestOfSets() int { return p.bestOfSets }

// FairPriceCents returns the fair price in [0,100] for the given player
// winning the match.
func (p *Pricer) FairPriceCents(s score.MatchState, pAServe, pBServe float64, player score.Player) float64 {
	priceA := MatchWinPriceCents(s, pAServe, pBServe, p.bestOfSets)
	if player == score.PlayerA {
		return priceA
	}
	return 100 - priceA
}
