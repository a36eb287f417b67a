// Package score models the live score state of a tennis match.
//
// A MatchState is an immutable snapshot: every update from a score feed
// produces a fresh value, which lets downstream consumers diff consecutive
// snapshots (see Tracker) without any shared mutable state.
package score

import "fmt"

// Player identifies one of the two players in a match.
type Player int

const (
	PlayerA Player = iota
	PlayerB
)

func (p Player) String() string {
	if p == PlayerA {
		return "A"
	}
	return "B"
}

// Opponent returns the other player.
func (p Player) Opponent() Player {
	if p == PlayerA {
		return PlayerB
	}
	return PlayerA
}

// TiebreakGames is the game count at which a set enters a tiebreak.
const TiebreakGames = 6

// MatchState is a snapshot of a match's score at an instant.
//
// Points use the 0/1/2/3/4 ladder (0, 15, 30, 40, AD). Tiebreak points are
// plain integers. A MatchState is never mutated in place; helpers that
// advance the score return new values.
type MatchState struct {
	SetsA, SetsB     int
	GamesA, GamesB   int
	PointsA, PointsB int

	Tiebreak         bool
	TiebreakPointsA  int
	TiebreakPointsB  int

	// Server is the player serving the current game. Inside a tiebreak it
	// is the player who served the tiebreak's first point.
	Server Player

	// TiebreakFirstServer is fixed at tiebreak start; the serving player
	// alternates every two points after the first.
	TiebreakFirstServer Player
}

// Starting returns the state of a match before the first point, with the
// given player serving first.
func Starting(firstServer Player) MatchState {
	return MatchState{Server: firstServer, TiebreakFirstServer: firstServer}
}

// New builds a validated MatchState. It rejects snapshots that violate
// score invariants rather than coercing them.
func New(s MatchState) (MatchState, error) {
	if err := s.Validate(); err != nil {
		return MatchState{}, err
	}
	return s, nil
}

// Validate checks the snapshot against score invariants.
func (s MatchState) Validate() error {
	if s.SetsA < 0 || s.SetsB < 0 || s.GamesA < 0 || s.GamesB < 0 ||
		s.PointsA < 0 || s.PointsB < 0 || s.TiebreakPointsA < 0 || s.TiebreakPointsB < 0 {
		return fmt.Errorf("score: negative counter in state %+v", s)
	}
	if s.PointsA > 4 || s.PointsB > 4 {
		return fmt.Errorf("score: game points above advantage: %d-%d", s.PointsA, s.PointsB)
	}
	if s.PointsA == 4 && s.PointsB != 3 {
		return fmt.Errorf("score: advantage A requires 40 for B, got %d-%d", s.PointsA, s.PointsB)
	}
	if s.PointsB == 4 && s.PointsA != 3 {
		return fmt.Errorf("score: advantage B requires 40 for A, got %d-%d", s.PointsA, s.PointsB)
	}
	if s.Tiebreak {
		if s.GamesA != TiebreakGames || s.GamesB != TiebreakGames {
			return fmt.Errorf("score: tiebreak at %d-%d games", s.GamesA, s.GamesB)
		}
		if s.PointsA != 0 || s.PointsB != 0 {
			return fmt.Errorf("score: game points set inside tiebreak")
		}
	} else if s.TiebreakPointsA != 0 || s.TiebreakPointsB != 0 {
		return fmt.Errorf("score: tiebreak points outside tiebreak")
	}
	if s.GamesA > TiebreakGames+1 || s.GamesB > TiebreakGames+1 {
		return fmt.Errorf("score: game count %d-%d exceeds a playable set", s.GamesA, s.GamesB)
	}
	return nil
}

// SetsNeeded returns the sets required to win a best-of-n match.
func SetsNeeded(bestOfSets int) int {
	return bestOfSets/2 + 1
}

// Completed reports whether either player has already won the match.
func (s MatchState) Completed(bestOfSets int) bool {
	need := SetsNeeded(bestOfSets)
	return s.SetsA >= need || s.SetsB >= need
}

// Winner returns the match winner, valid only when Completed is true.
func (s MatchState) Winner(bestOfSets int) (Player, bool) {
	need := SetsNeeded(bestOfSets)
	switch {
	case s.SetsA >= need:
		return PlayerA, true
	case s.SetsB >= need:
		return PlayerB, true
	}
	return PlayerA, false
}

// DecidingSet reports whether the current set, if won, decides the match.
func (s MatchState) DecidingSet(bestOfSets int) bool {
	return s.SetsA+s.SetsB+1 == bestOfSets
}

// AfterSetWin returns the state advanced by one set to the given winner,
// with game, point and tiebreak counters reset for the next set.
func (s MatchState) AfterSetWin(winner Player) MatchState {
	next := MatchState{
		SetsA:               s.SetsA,
		SetsB:               s.SetsB,
		Server:              s.Server.Opponent(),
		TiebreakFirstServer: s.Server.Opponent(),
	}
	if winner == PlayerA {
		next.SetsA++
	} else {
		next.SetsB++
	}
	return next
}

// Points returns the current game points for the given player.
func (s MatchState) Points(p Player) int {
	if p == PlayerA {
		return s.PointsA
	}
	return s.PointsB
}

// Games returns the games won in the current set by the given player.
func (s MatchState) Games(p Player) int {
	if p == PlayerA {
		return s.GamesA
	}
	return s.GamesB
}

// Sets returns the sets won by the given player.
func (s MatchState) Sets(p Player) int {
	if p == PlayerA {
		return s.SetsA
	}
	return s.SetsB
}

func (s MatchState) String() string {
	if s.Tiebreak {
		return fmt.Sprintf("sets %d-%d, games %d-%d, TB %d-%d (srv %s)",
			s.SetsA, s.SetsB, s.GamesA, s.GamesB, s.TiebreakPointsA, s.TiebreakPointsB, s.Server)
	}
	return fmt.Sprintf("sets %d-%d, games %d-%d, pts %s-%s (srv %s)",
		s.SetsA, s.SetsB, s.GamesA, s.GamesB, PointName(s.PointsA), PointName(s.PointsB), s.Server)
}
