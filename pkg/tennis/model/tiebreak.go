package model

import "github.com/courtedge/tennis-agents/pkg/tennis/score"

// tiebreakServer returns who serves point index n (0-based) of a tiebreak.
// The first point is served by firstServer; after that the serve changes
// hands every two points.
func tiebreakServer(n int, firstServer score.Player) score.Player {
	if ((n+1)/2)%2 == 0 {
		return firstServer
	}
	return firstServer.Opponent()
}

// TiebreakWinProbability returns the probability that player A wins the
// tiebreak from the given point score. pA and pB are each player's
// point-win probability on their own serve. First to 7, win by 2.
func TiebreakWinProbability(pA, pB float64, pointsA, pointsB int, firstServer score.Player) float64 {
	memo := make(map[[2]int]float64, 64)
	return tiebreakFrom(pA, pB, pointsA, pointsB, firstServer, memo)
}

func tiebreakFrom(pA, pB float64, a, b int, first score.Player, memo map[[2]int]float64) float64 {
	if a >= 7 && a-b >= 2 {
		return 1
	}
	if b >= 7 && b-a >= 2 {
		return 0
	}
	if a == b && a >= 6 {
		// Extended tiebreak: every two-point block from here has one point
		// on each player's serve, so the race from any tie is a fixed
		// absorbing chain regardless of how deep it goes.
		winPair := pA * (1 - pB)
		losePair := (1 - pA) * pB
		denom := winPair + losePair
		if denom == 0 {
			// Both players hold every serve point; the tiebreak never
			// resolves, so neither side is favored.
			return 0.5
		}
		return winPair / denom
	}
	key := [2]int{a, b}
	if v, ok := memo[key]; ok {
		return v
	}

	var pPointA float64 // probability A wins the next point
	if tiebreakServer(a+b, first) == score.PlayerA {
		pPointA = pA
	} else {
		pPointA = 1 - pB
	}
	v := pPointA*tiebreakFrom(pA, pB, a+1, b, first, memo) +
		(1-pPointA)*tiebreakFrom(pA, pB, a, b+1, first, memo)
	memo[key] = v
	return v
}
