package serve

import (
	"math"
	"testing"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
)

func TestNewEstimator_Validation(t *testing.T) {
	if _, err := NewEstimator(Priors{AlphaA: 30, BetaA: 20, AlphaB: 0, BetaB: 18}, 2); err == nil {
		t.Error("zero prior should be rejected")
	}
	if _, err := NewEstimator(DefaultPriors(), -1); err == nil {
		t.Error("negative adaptive base should be rejected")
	}
	e, err := NewEstimator(DefaultPriors(), 0)
	if err != nil {
		t.Fatalf("default base: %v", err)
	}
	if g := e.Gain(score.PlayerA); g != 1/DefaultAdaptiveBase {
		t.Errorf("initial gain = %g, want %g", g, 1/DefaultAdaptiveBase)
	}
}

func TestEstimator_CurrentPFromPriors(t *testing.T) {
	e, err := NewEstimator(Priors{AlphaA: 30, BetaA: 20, AlphaB: 40, BetaB: 10}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p := e.CurrentP(score.PlayerA); math.Abs(p-0.6) > 1e-12 {
		t.Errorf("pA = %g, want 0.6", p)
	}
	if p := e.CurrentP(score.PlayerB); math.Abs(p-0.8) > 1e-12 {
		t.Errorf("pB = %g, want 0.8", p)
	}
}

func TestEstimator_UpdateMovesTowardObservation(t *testing.T) {
	e, _ := NewEstimator(Priors{AlphaA: 30, BetaA: 20, AlphaB: 30, BetaB: 20}, 2)
	before := e.CurrentP(score.PlayerA)

	// A dominant service game pulls the belief up.
	e.Update(score.PlayerA, 4, 4)
	after := e.CurrentP(score.PlayerA)
	if after <= before {
		t.Errorf("winning every point should raise pA: %g -> %g", before, after)
	}

	// B's belief is untouched.
	if pB := e.CurrentP(score.PlayerB); math.Abs(pB-0.6) > 1e-12 {
		t.Errorf("pB moved to %g on A's update", pB)
	}
}

func TestEstimator_GuardsEmptyGame(t *testing.T) {
	e, _ := NewEstimator(DefaultPriors(), 2)
	before := e.CurrentP(score.PlayerA)
	e.Update(score.PlayerA, 0, 0)
	e.Update(score.PlayerA, 3, -1)
	if e.CurrentP(score.PlayerA) != before {
		t.Error("empty game must not change the belief")
	}
	if e.GamesPlayed(score.PlayerA) != 0 {
		t.Error("empty game must not count as played")
	}
}

func TestEstimator_ConvergesToEmpiricalRate(t *testing.T) {
	e, _ := NewEstimator(Priors{AlphaA: 30, BetaA: 20, AlphaB: 30, BetaB: 20}, 2)

	// Feed 2000 synthetic service games at a 70% point-win rate.
	const rate = 0.7
	for i := 0; i < 2000; i++ {
		e.Update(score.PlayerA, 7, 10)
	}
	if p := e.CurrentP(score.PlayerA); math.Abs(p-rate) > 0.03 {
		t.Errorf("pA = %g after 2000 games, want within 0.03 of %g", p, rate)
	}
}

func TestEstimator_GainStrictlyDecreases(t *testing.T) {
	e, _ := NewEstimator(DefaultPriors(), 2)
	prev := e.Gain(score.PlayerB)
	for i := 0; i < 25; i++ {
		e.Update(score.PlayerB, 3, 5)
		g := e.Gain(score.PlayerB)
		if g >= prev {
			t.Fatalf("gain did not decrease at game %d: %g >= %g", i+1, g, prev)
		}
		prev = g
	}
}

func TestEstimator_ObserveGame(t *testing.T) {
	e, _ := NewEstimator(DefaultPriors(), 2)
	e.ObserveGame(score.GameResult{Server: score.PlayerB, PointsWon: 1, PointsPlayed: 6})
	if e.GamesPlayed(score.PlayerB) != 1 {
		t.Error("tracked game not recorded")
	}
	if pA, pB := e.Probabilities(); pB >= pA {
		t.Errorf("a lost service game should lower pB below pA: pA=%g pB=%g", pA, pB)
	}
}
