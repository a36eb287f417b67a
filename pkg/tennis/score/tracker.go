package score

// GameResult summarizes a completed service game, as reconstructed from
// the point-by-point snapshot stream. It feeds the serve estimator.
type GameResult struct {
	Server       Player
	PointsWon    int // points won by the server
	PointsPlayed int // total points in the game
}

// Tracker diffs consecutive MatchState snapshots and emits a GameResult
// whenever a regular service game completes. Tiebreaks are not service
// games and produce no result.
//
// The tracker counts points from snapshot transitions, so it needs the
// feed to tick on (approximately) every point. If the feed skips a whole
// game, that game is dropped rather than misattributed.
type Tracker struct {
	last         MatchState
	seen         bool
	serverPoints int
	totalPoints  int
}

// NewTracker returns a tracker with no observed state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset clears all observed state, e.g. when switching matches.
func (t *Tracker) Reset() {
	*t = Tracker{}
}

// Observe ingests the next snapshot. It returns a GameResult and true when
// the transition completes exactly one regular service game.
func (t *Tracker) Observe(s MatchState) (GameResult, bool) {
	if !t.seen {
		t.last = s
		t.seen = true
		return GameResult{}, false
	}
	prev := t.last
	t.last = s

	if prev.Tiebreak {
		// Nothing to attribute; wait for the next set.
		t.serverPoints, t.totalPoints = 0, 0
		return GameResult{}, false
	}

	sameGame := s.SetsA == prev.SetsA && s.SetsB == prev.SetsB &&
		s.GamesA == prev.GamesA && s.GamesB == prev.GamesB && !s.Tiebreak

	if sameGame {
		if winner, ok := pointWinner(prev, s); ok {
			t.totalPoints++
			if winner == prev.Server {
				t.serverPoints++
			}
		}
		return GameResult{}, false
	}

	winner, ok := gameWinner(prev, s)
	if !ok {
		// More than one game elapsed, or the transition is unreadable.
		t.serverPoints, t.totalPoints = 0, 0
		return GameResult{}, false
	}

	// The game-closing point itself.
	total := t.totalPoints + 1
	won := t.serverPoints
	if winner == prev.Server {
		won++
	}
	t.serverPoints, t.totalPoints = 0, 0

	return GameResult{Server: prev.Server, PointsWon: won, PointsPlayed: total}, true
}

// pointWinner determines who won the point between two snapshots of the
// same game. A cleared advantage (4 -> 3) counts as a point for the other
// player.
func pointWinner(prev, cur MatchState) (Player, bool) {
	switch {
	case cur.PointsA > prev.PointsA || cur.PointsB < prev.PointsB:
		return PlayerA, true
	case cur.PointsB > prev.PointsB || cur.PointsA < prev.PointsA:
		return PlayerB, true
	}
	return PlayerA, false
}

// gameWinner determines who won the game that just completed, and reports
// false when the snapshots are more than one game apart.
func gameWinner(prev, cur MatchState) (Player, bool) {
	// Set rollover: the game winner also closed out the set.
	if cur.SetsA == prev.SetsA+1 && cur.SetsB == prev.SetsB {
		return PlayerA, true
	}
	if cur.SetsB == prev.SetsB+1 && cur.SetsA == prev.SetsA {
		return PlayerB, true
	}
	if cur.SetsA != prev.SetsA || cur.SetsB != prev.SetsB {
		return PlayerA, false
	}
	if cur.GamesA == prev.GamesA+1 && cur.GamesB == prev.GamesB {
		return PlayerA, true
	}
	if cur.GamesB == prev.GamesB+1 && cur.GamesA == prev.GamesA {
		return PlayerB, true
	}
	return PlayerA, false
}
