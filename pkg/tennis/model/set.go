package model

import "github.com/courtedge/tennis-agents/pkg/tennis/score"

type setKey struct {
	gamesA, gamesB int
	server         score.Player
}

// SetWinProbability returns the probability that player A wins the set
// from the given game score. holdA and holdB are each player's probability
// of holding their own serve from 0-0; pA and pB are point-win-on-serve
// probabilities, needed when the set reaches a tiebreak. Serving alternates
// by game parity with player A serving the set's first game.
func SetWinProbability(holdA, holdB, pA, pB float64, gamesA, gamesB int) float64 {
	server := score.PlayerA
	if (gamesA+gamesB)%2 == 1 {
		server = score.PlayerB
	}
	memo := make(map[setKey]float64, 64)
	return setFrom(holdA, holdB, pA, pB, gamesA, gamesB, server, memo)
}

func setFrom(holdA, holdB, pA, pB float64, gA, gB int, server score.Player, memo map[setKey]float64) float64 {
	if gA >= 6 && gA-gB >= 2 {
		return 1
	}
	if gB >= 6 && gB-gA >= 2 {
		return 0
	}
	if gA == score.TiebreakGames && gB == score.TiebreakGames {
		// server here is the server of game 13, who also serves the
		// tiebreak's first point.
		return TiebreakWinProbability(pA, pB, 0, 0, server)
	}
	key := setKey{gA, gB, server}
	if v, ok := memo[key]; ok {
		return v
	}

	next := server.Opponent()
	var v float64
	if server == score.PlayerA {
		v = holdA*setFrom(holdA, holdB, pA, pB, gA+1, gB, next, memo) +
			(1-holdA)*setFrom(holdA, holdB, pA, pB, gA, gB+1, next, memo)
	} else {
		v = holdB*setFrom(holdA, holdB, pA, pB, gA, gB+1, next, memo) +
			(1-holdB)*setFrom(holdA, holdB, pA, pB, gA+1, gB, next, memo)
	}
	memo[key] = v
	return v
}
