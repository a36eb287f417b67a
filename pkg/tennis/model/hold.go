// Package model prices live tennis matches.
//
// It composes a multi-level probability model: point-win probability on
// serve -> game hold probability -> tiebreak -> set -> match. All
// functions are pure; memoization is scoped to a single evaluation so a
// change in serve probabilities between pricing calls can never surface a
// stale cached value.
package model

// deuceProbability is the absorbing-Markov-chain closed form for the
// server winning from deuce: p^2 / (p^2 + (1-p)^2).
func deuceProbability(p float64) float64 {
	if p >= 1 {
		return 1
	}
	if p <= 0 {
		return 0
	}
	q := 1 - p
	return p * p / (p*p + q*q)
}

// HoldProbability returns the probability that the server wins the current
// game, given p, the server's probability of winning a point on serve, and
// the current point score on the 0..4 ladder.
func HoldProbability(p float64, serverPoints, returnerPoints int) float64 {
	memo := make(map[[2]int]float64, 16)
	return holdFrom(p, serverPoints, returnerPoints, memo)
}

func holdFrom(p float64, s, r int, memo map[[2]int]float64) float64 {
	if s >= 4 && s-r >= 2 {
		return 1
	}
	if r >= 4 && r-s >= 2 {
		return 0
	}
	if s >= 3 && r >= 3 {
		// Deuce ladder closed forms; the recursion below never needs to
		// walk past them.
		pd := deuceProbability(p)
		switch {
		case s == r:
			return pd
		case s == r+1:
			return p + (1-p)*pd
		default: // r == s+1
			return p * pd
		}
	}
	key := [2]int{s, r}
	if v, ok := memo[key]; ok {
		return v
	}
	v := p*holdFrom(p, s+1, r, memo) + (1-p)*holdFrom(p, s, r+1, memo)
	memo[key] = v
	return v
}
