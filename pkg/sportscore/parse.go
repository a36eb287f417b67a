package sportscore

import (
	"fmt"
	"strconv"

	"github.com/courtedge/tennis-agents/pkg/tennis/score"
)

// ParseState converts a live event payload into a validated scoreboard.
// Player A is the home competitor, player B the away competitor.
func ParseState(ev *Event) (score.MatchState, error) {
	if ev.HomeScore == nil || ev.AwayScore == nil {
		return score.MatchState{}, fmt.Errorf("sportscore: event %d has no score data", ev.ID)
	}

	server := score.PlayerB
	if ev.FirstSupply == 1 {
		server = score.PlayerA
	}

	period := ev.LastedPeriod
	if period == "" {
		period = "period_1"
	}

	gamesA, err := scoreInt(ev.HomeScore, period)
	if err != nil {
		return score.MatchState{}, fmt.Errorf("sportscore: home games: %w", err)
	}
	gamesB, err := scoreInt(ev.AwayScore, period)
	if err != nil {
		return score.MatchState{}, fmt.Errorf("sportscore: away games: %w", err)
	}

	setsA, err := scoreInt(ev.HomeScore, "current")
	if err != nil {
		return score.MatchState{}, fmt.Errorf("sportscore: home sets: %w", err)
	}
	setsB, err := scoreInt(ev.AwayScore, "current")
	if err != nil {
		return score.MatchState{}, fmt.Errorf("sportscore: away sets: %w", err)
	}

	s := score.MatchState{
		SetsA:  setsA,
		SetsB:  setsB,
		GamesA: gamesA,
		GamesB: gamesB,
		Server: server,
		// The feed does not report who served the first point of a
		// tiebreak; the first server of the set is the best available
		// proxy.
		TiebreakFirstServer: server,
	}

	rawA := scoreString(ev.HomeScore, "point")
	rawB := scoreString(ev.AwayScore, "point")

	if gamesA == score.TiebreakGames && gamesB == score.TiebreakGames {
		// Inside a tiebreak the feed reuses the point field for raw
		// tiebreak point counts instead of tennis notation.
		s.Tiebreak = true
		if s.TiebreakPointsA, err = rawPoint(rawA); err != nil {
			return score.MatchState{}, fmt.Errorf("sportscore: home tiebreak point: %w", err)
		}
		if s.TiebreakPointsB, err = rawPoint(rawB); err != nil {
			return score.MatchState{}, fmt.Errorf("sportscore: away tiebreak point: %w", err)
		}
	} else {
		if s.PointsA, err = score.ParsePoint(rawA); err != nil {
			return score.MatchState{}, fmt.Errorf("sportscore: home point: %w", err)
		}
		if s.PointsB, err = score.ParsePoint(rawB); err != nil {
			return score.MatchState{}, fmt.Errorf("sportscore: away point: %w", err)
		}
	}

	return score.New(s)
}

// rawPoint parses a tiebreak point count.
func rawPoint(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// scoreInt reads an integer score field. The feed sends numbers as JSON
// numbers but occasionally as strings.
func scoreInt(m map[string]interface{}, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("field %q: unexpected type %T", key, v)
	}
}

func scoreString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.Itoa(int(s))
	default:
		return ""
	}
}
