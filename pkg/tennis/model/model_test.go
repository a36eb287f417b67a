package model

import (
	"math"
	"testing"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
)

func almostEqual(t *testing.T, got, want, tol float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol %g)", msg, got, want, tol)
	}
}

func TestHoldProbability_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		s, r int
		want float64
	}{
		{"game already won", 0.01, 4, 0, 1.0},
		{"game already won from 40-30 step", 0.99, 5, 3, 1.0},
		{"game already lost", 0.99, 0, 4, 0.0},
		{"deuce equal skill", 0.5, 3, 3, 0.5},
		{"certain server", 1.0, 0, 0, 1.0},
		{"hopeless server", 0.0, 0, 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HoldProbability(tt.p, tt.s, tt.r)
			almostEqual(t, got, tt.want, 1e-12, "HoldProbability")
		})
	}
}

func TestHoldProbability_DeuceClosedForm(t *testing.T) {
	// p^2 / (p^2 + (1-p)^2) at p=0.65.
	p := 0.65
	want := p * p / (p*p + (1-p)*(1-p))
	almostEqual(t, HoldProbability(p, 3, 3), want, 1e-12, "deuce at 0.65")

	// Advantage algebra around deuce.
	pd := want
	almostEqual(t, HoldProbability(p, 4, 3), p+(1-p)*pd, 1e-12, "server advantage")
	almostEqual(t, HoldProbability(p, 3, 4), p*pd, 1e-12, "returner advantage")
}

func TestHoldProbability_Symmetry(t *testing.T) {
	for _, p := range []float64{0.1, 0.35, 0.5, 0.62, 0.8, 0.95} {
		for s := 0; s <= 3; s++ {
			for r := 0; r <= 3; r++ {
				lhs := HoldProbability(p, s, r)
				rhs := 1 - HoldProbability(1-p, r, s)
				if math.Abs(lhs-rhs) > 1e-12 {
					t.Errorf("symmetry broken at p=%.2f (%d,%d): %.9f vs %.9f", p, s, r, lhs, rhs)
				}
			}
		}
	}
}

func TestHoldProbability_MonotoneInP(t *testing.T) {
	for s := 0; s <= 3; s++ {
		for r := 0; r <= 3; r++ {
			prev := -1.0
			for p := 0.0; p <= 1.0001; p += 0.05 {
				cur := HoldProbability(p, s, r)
				if cur < prev-1e-12 {
					t.Fatalf("hold not monotone at (%d,%d), p=%.2f: %.9f < %.9f", s, r, p, cur, prev)
				}
				prev = cur
			}
		}
	}
}

func TestTiebreakWinProbability(t *testing.T) {
	t.Run("equal players is a coin flip", func(t *testing.T) {
		for _, p := range []float64{0.3, 0.5, 0.65, 0.8} {
			for _, first := range []score.Player{score.PlayerA, score.PlayerB} {
				got := TiebreakWinProbability(p, p, 0, 0, first)
				almostEqual(t, got, 0.5, 1e-9, "tiebreak from 0-0")
			}
		}
	})

	t.Run("terminal scores", func(t *testing.T) {
		almostEqual(t, TiebreakWinProbability(0.6, 0.6, 7, 5, score.PlayerA), 1.0, 0, "won tiebreak")
		almostEqual(t, TiebreakWinProbability(0.6, 0.6, 5, 7, score.PlayerA), 0.0, 0, "lost tiebreak")
		almostEqual(t, TiebreakWinProbability(0.6, 0.6, 10, 8, score.PlayerB), 1.0, 0, "extended win")
	})

	t.Run("stronger server is favored", func(t *testing.T) {
		strong := TiebreakWinProbability(0.70, 0.60, 0, 0, score.PlayerA)
		if strong <= 0.5 {
			t.Errorf("stronger server should be favored, got %.4f", strong)
		}
	})

	t.Run("being ahead helps", func(t *testing.T) {
		ahead := TiebreakWinProbability(0.65, 0.65, 5, 2, score.PlayerA)
		level := TiebreakWinProbability(0.65, 0.65, 2, 2, score.PlayerA)
		if ahead <= level {
			t.Errorf("5-2 (%f) should beat 2-2 (%f)", ahead, level)
		}
	})

	t.Run("extended tie uses the pair race", func(t *testing.T) {
		pA, pB := 0.7, 0.6
		want := pA * (1 - pB) / (pA*(1-pB) + (1-pA)*pB)
		almostEqual(t, TiebreakWinProbability(pA, pB, 8, 8, score.PlayerA), want, 1e-12, "8-8 race")
	})
}

func TestSetWinProbability(t *testing.T) {
	t.Run("terminals", func(t *testing.T) {
		almostEqual(t, SetWinProbability(0.8, 0.8, 0.65, 0.65, 6, 3), 1.0, 0, "set won")
		almostEqual(t, SetWinProbability(0.8, 0.8, 0.65, 0.65, 2, 6), 0.0, 0, "set lost")
	})

	t.Run("equal players from 0-0", func(t *testing.T) {
		almostEqual(t, SetWinProbability(0.8, 0.8, 0.65, 0.65, 0, 0), 0.5, 1e-9, "level set")
	})

	t.Run("six-six delegates to tiebreak", func(t *testing.T) {
		got := SetWinProbability(0.8, 0.8, 0.70, 0.60, 6, 6)
		want := TiebreakWinProbability(0.70, 0.60, 0, 0, score.PlayerA)
		almostEqual(t, got, want, 1e-12, "6-6")
	})

	t.Run("game lead helps", func(t *testing.T) {
		ahead := SetWinProbability(0.8, 0.8, 0.65, 0.65, 4, 2)
		level := SetWinProbability(0.8, 0.8, 0.65, 0.65, 2, 2)
		if ahead <= level {
			t.Errorf("4-2 (%f) should beat 2-2 (%f)", ahead, level)
		}
	})
}

func TestMatchWinPriceCents_Terminal(t *testing.T) {
	states := []score.MatchState{
		{SetsA: 2, Server: score.PlayerB},
		{SetsA: 2, SetsB: 1, GamesB: 5, PointsB: 3},
		{SetsB: 2, GamesA: 4, GamesB: 4},
		{SetsB: 2, SetsA: 1},
	}
	for _, s := range states {
		got := MatchWinPriceCents(s, 0.63, 0.61, 3)
		if s.SetsA >= 2 && got != 100.0 {
			t.Errorf("state %v: want exactly 100, got %v", s, got)
		}
		if s.SetsB >= 2 && got != 0.0 {
			t.Errorf("state %v: want exactly 0, got %v", s, got)
		}
	}
}

func TestMatchWinPriceCents_RewardsBeingAhead(t *testing.T) {
	// Best of 3, A up a set, 5-4 in games, deuce on A's serve.
	ahead := score.MatchState{
		SetsA: 1, GamesA: 5, GamesB: 4,
		PointsA: 3, PointsB: 3,
		Server: score.PlayerA, TiebreakFirstServer: score.PlayerA,
	}
	levelGames := score.MatchState{
		SetsA: 1, Server: score.PlayerA, TiebreakFirstServer: score.PlayerA,
	}
	p := 0.65
	priceAhead := MatchWinPriceCents(ahead, p, p, 3)
	priceLevel := MatchWinPriceCents(levelGames, p, p, 3)
	if priceAhead <= priceLevel {
		t.Errorf("5-4 deuce (%.2f) should price above 0-0 (%.2f)", priceAhead, priceLevel)
	}
	if priceAhead <= 50 || priceAhead >= 100 {
		t.Errorf("price %.2f out of expected range (50,100)", priceAhead)
	}
}

func TestMatchWinPriceCents_TwoSidedConsistency(t *testing.T) {
	s := score.MatchState{
		SetsB: 1, GamesA: 3, GamesB: 2, PointsA: 2, PointsB: 1,
		Server: score.PlayerB, TiebreakFirstServer: score.PlayerB,
	}
	pricer, err := NewPricer(5)
	if err != nil {
		t.Fatal(err)
	}
	a := pricer.FairPriceCents(s, 0.66, 0.58, score.PlayerA)
	b := pricer.FairPriceCents(s, 0.66, 0.58, score.PlayerB)
	almostEqual(t, a+b, 100, 1e-9, "two-sided prices")
}

func TestMatchWinPriceCents_DecidingSetTiebreak(t *testing.T) {
	// Third set of a best-of-3 at 6-6: the tiebreak decides the match.
	s := score.MatchState{
		SetsA: 1, SetsB: 1,
		GamesA: 6, GamesB: 6,
		Tiebreak:        true,
		TiebreakPointsA: 6, TiebreakPointsB: 3,
		Server: score.PlayerA, TiebreakFirstServer: score.PlayerA,
	}
	got := MatchWinPriceCents(s, 0.62, 0.62, 3)
	want := TiebreakWinProbability(0.62, 0.62, 6, 3, score.PlayerA) * 100
	almostEqual(t, got, want, 1e-9, "deciding tiebreak")
}

func TestEvaluator_FreshProbabilitiesFreshPrices(t *testing.T) {
	// Pricing the same state with different serve probabilities must not
	// reuse cached values from a previous evaluation.
	s := score.Starting(score.PlayerA)
	before := MatchWinPriceCents(s, 0.60, 0.60, 3)
	after := MatchWinPriceCents(s, 0.72, 0.60, 3)
	if after <= before {
		t.Errorf("stronger A serve must raise A's price: %.3f -> %.3f", before, after)
	}
}

func TestNewPricer_RejectsEvenFormat(t *testing.T) {
	for _, n := range []int{0, -1, 2, 4} {
		if _, err := NewPricer(n); err == nil {
			t.Errorf("NewPricer(%d) should fail", n)
		}
	}
}
