// Package serve maintains an online belief about each player's
// point-win probability on serve.
package serve

import (
	"fmt"
	"sync"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
)

// Priors are the Beta-like shape parameters each player starts a match
// with. alpha counts prior serve points won, beta prior serve points lost,
// so alpha/(alpha+beta) is the prior point-win probability.
type Priors struct {
	AlphaA, BetaA float64
	AlphaB, BetaB float64
}

// DefaultPriors returns a mildly server-favoring prior for both players.
func DefaultPriors() Priors {
	return Priors{AlphaA: 30, BetaA: 20, AlphaB: 30, BetaB: 20}
}

// DefaultAdaptiveBase is the default prior-strength constant for the
// adaptive gain. Larger values make early updates more conservative.
const DefaultAdaptiveBase = 2.0

type playerBelief struct {
	alpha, beta float64
	gamesPlayed int
}

// Estimator holds one match's serve-strength beliefs. It is created at
// match start, updated after each completed service game, and discarded
// with the match.
//
// Updates and reads are serialized by an internal mutex so a pricing read
// can never observe a half-applied update.
type Estimator struct {
	mu           sync.Mutex
	adaptiveBase float64
	players      [2]playerBelief
}

// NewEstimator creates an estimator from priors. adaptiveBase must be
// positive; zero selects DefaultAdaptiveBase.
func NewEstimator(p Priors, adaptiveBase float64) (*Estimator, error) {
	if adaptiveBase == 0 {
		adaptiveBase = DefaultAdaptiveBase
	}
	if adaptiveBase < 0 {
		return nil, fmt.Errorf("serve: adaptive base must be positive, got %g", adaptiveBase)
	}
	for _, pair := range [][2]float64{{p.AlphaA, p.BetaA}, {p.AlphaB, p.BetaB}} {
		if pair[0] <= 0 || pair[1] <= 0 {
			return nil, fmt.Errorf("serve: priors must be positive, got alpha=%g beta=%g", pair[0], pair[1])
		}
	}
	return &Estimator{
		adaptiveBase: adaptiveBase,
		players: [2]playerBelief{
			{alpha: p.AlphaA, beta: p.BetaA},
			{alpha: p.AlphaB, beta: p.BetaB},
		},
	}, nil
}

// CurrentP returns the player's current point-win-on-serve probability.
func (e *Estimator) CurrentP(player score.Player) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.players[player]
	return b.alpha / (b.alpha + b.beta)
}

// Probabilities returns both serve probabilities in one consistent read.
func (e *Estimator) Probabilities() (pA, pB float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, b := e.players[score.PlayerA], e.players[score.PlayerB]
	return a.alpha / (a.alpha + a.beta), b.alpha / (b.alpha + b.beta)
}

// GamesPlayed returns the number of completed service games observed for
// the player.
func (e *Estimator) GamesPlayed(player score.Player) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.players[player].gamesPlayed
}

// Gain returns the learning rate the next update for the player will use:
// 1 / (gamesPlayed + adaptiveBase). It shrinks as service games accumulate.
func (e *Estimator) Gain(player score.Player) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return 1 / (float64(e.players[player].gamesPlayed) + e.adaptiveBase)
}

// Update folds one completed service game into the server's belief,
// nudging alpha/beta toward the game's empirical point-win rate with the
// adaptive gain. Games with no points are ignored.
func (e *Estimator) Update(server score.Player, pointsWon, totalPoints int) {
	if totalPoints <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b := &e.players[server]
	gain := 1 / (float64(b.gamesPlayed) + e.adaptiveBase)
	current := b.alpha / (b.alpha + b.beta)
	lost := totalPoints - pointsWon

	b.alpha += gain * (float64(pointsWon) - current*float64(totalPoints))
	b.beta += gain * (float64(lost) - (1-current)*float64(totalPoints))
	b.gamesPlayed++
}

// ObserveGame applies a Tracker game result.
func (e *Estimator) ObserveGame(g score.GameResult) {
	e.Update(g.Server, g.PointsWon, g.PointsPlayed)
}
