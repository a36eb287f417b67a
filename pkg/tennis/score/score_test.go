package score

import "testing"

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		state   MatchState
		wantErr bool
	}{
		{"fresh match", Starting(PlayerA), false},
		{"mid game", MatchState{GamesA: 3, GamesB: 2, PointsA: 2, PointsB: 3, Server: PlayerB}, false},
		{"advantage", MatchState{PointsA: 4, PointsB: 3}, false},
		{"tiebreak at six-six", MatchState{GamesA: 6, GamesB: 6, Tiebreak: true, TiebreakPointsA: 3, TiebreakPointsB: 5}, false},
		{"negative games", MatchState{GamesA: -1}, true},
		{"points past advantage", MatchState{PointsA: 5}, true},
		{"advantage without deuce", MatchState{PointsA: 4, PointsB: 1}, true},
		{"tiebreak at wrong games", MatchState{GamesA: 5, GamesB: 6, Tiebreak: true}, true},
		{"tiebreak points outside tiebreak", MatchState{TiebreakPointsA: 2}, true},
		{"game points inside tiebreak", MatchState{GamesA: 6, GamesB: 6, Tiebreak: true, PointsA: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.state)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%+v) error = %v, wantErr %v", tt.state, err, tt.wantErr)
			}
		})
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"15", 1, false},
		{"30", 2, false},
		{"40", 3, false},
		{"AD", 4, false},
		{"ad", 4, false},
		{"", 0, false},
		{" 30 ", 2, false},
		{"45", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePoint(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePoint(%q) = %d, %v; want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestMatchLifecycle(t *testing.T) {
	s := MatchState{SetsA: 1, SetsB: 1}
	if s.Completed(3) {
		t.Error("1-1 in sets should not be complete in best of 3")
	}
	s = s.AfterSetWin(PlayerB)
	if !s.Completed(3) {
		t.Error("1-2 in sets should be complete in best of 3")
	}
	w, ok := s.Winner(3)
	if !ok || w != PlayerB {
		t.Errorf("Winner = %v, %v; want PlayerB", w, ok)
	}
	if s.Completed(5) {
		t.Error("1-2 in sets is not complete in best of 5")
	}
}

func TestAfterSetWin_ResetsCounters(t *testing.T) {
	s := MatchState{
		SetsA: 1, GamesA: 6, GamesB: 6, Tiebreak: true,
		TiebreakPointsA: 7, TiebreakPointsB: 5,
		Server: PlayerA, TiebreakFirstServer: PlayerA,
	}
	next := s.AfterSetWin(PlayerA)
	if next.SetsA != 2 || next.SetsB != 0 {
		t.Errorf("sets = %d-%d, want 2-0", next.SetsA, next.SetsB)
	}
	if next.GamesA != 0 || next.GamesB != 0 || next.Tiebreak ||
		next.TiebreakPointsA != 0 || next.TiebreakPointsB != 0 ||
		next.PointsA != 0 || next.PointsB != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
	if next.Server != PlayerB {
		t.Errorf("serve should pass to B for the new set, got %v", next.Server)
	}
}

func TestTracker_CompletedHold(t *testing.T) {
	tr := NewTracker()
	// A serves and holds to 15: points A 0,1,2,2,3 then game.
	snapshots := []MatchState{
		{Server: PlayerA},
		{PointsA: 1, Server: PlayerA},
		{PointsA: 2, Server: PlayerA},
		{PointsA: 2, PointsB: 1, Server: PlayerA},
		{PointsA: 3, PointsB: 1, Server: PlayerA},
		{GamesA: 1, Server: PlayerB},
	}
	var got GameResult
	var emitted bool
	for _, s := range snapshots {
		if g, ok := tr.Observe(s); ok {
			got, emitted = g, true
		}
	}
	if !emitted {
		t.Fatal("expected a game result")
	}
	want := GameResult{Server: PlayerA, PointsWon: 4, PointsPlayed: 5}
	if got != want {
		t.Errorf("game result = %+v, want %+v", got, want)
	}
}

func TestTracker_BrokenServe(t *testing.T) {
	tr := NewTracker()
	snapshots := []MatchState{
		{GamesA: 2, GamesB: 3, Server: PlayerB},
		{GamesA: 2, GamesB: 3, PointsA: 1, Server: PlayerB},
		{GamesA: 2, GamesB: 3, PointsA: 2, Server: PlayerB},
		{GamesA: 2, GamesB: 3, PointsA: 3, Server: PlayerB},
		{GamesA: 3, GamesB: 3, Server: PlayerA}, // A breaks to love... of a sort
	}
	var got GameResult
	var emitted bool
	for _, s := range snapshots {
		if g, ok := tr.Observe(s); ok {
			got, emitted = g, true
		}
	}
	if !emitted {
		t.Fatal("expected a game result")
	}
	want := GameResult{Server: PlayerB, PointsWon: 0, PointsPlayed: 4}
	if got != want {
		t.Errorf("game result = %+v, want %+v", got, want)
	}
}

func TestTracker_AdvantageSwings(t *testing.T) {
	tr := NewTracker()
	// Deuce, A advantage, back to deuce, B advantage, B breaks.
	snapshots := []MatchState{
		{PointsA: 3, PointsB: 3, Server: PlayerA},
		{PointsA: 4, PointsB: 3, Server: PlayerA},
		{PointsA: 3, PointsB: 3, Server: PlayerA},
		{PointsA: 3, PointsB: 4, Server: PlayerA},
		{GamesB: 1, Server: PlayerB},
	}
	var got GameResult
	var emitted bool
	for _, s := range snapshots {
		if g, ok := tr.Observe(s); ok {
			got, emitted = g, true
		}
	}
	if !emitted {
		t.Fatal("expected a game result")
	}
	// Of the 4 observed points, the server won 1 (the advantage point).
	want := GameResult{Server: PlayerA, PointsWon: 1, PointsPlayed: 4}
	if got != want {
		t.Errorf("game result = %+v, want %+v", got, want)
	}
}

func TestTracker_SkipsMissedGames(t *testing.T) {
	tr := NewTracker()
	tr.Observe(MatchState{GamesA: 1, Server: PlayerB})
	// Two games elapse between polls: nothing attributable.
	if _, ok := tr.Observe(MatchState{GamesA: 2, GamesB: 1, Server: PlayerB}); ok {
		t.Error("should not emit when more than one game elapsed")
	}
}

func TestTracker_IgnoresTiebreak(t *testing.T) {
	tr := NewTracker()
	tr.Observe(MatchState{GamesA: 6, GamesB: 6, Tiebreak: true, Server: PlayerA, TiebreakFirstServer: PlayerA})
	tr.Observe(MatchState{GamesA: 6, GamesB: 6, Tiebreak: true, TiebreakPointsA: 1, Server: PlayerA, TiebreakFirstServer: PlayerA})
	if _, ok := tr.Observe(MatchState{SetsA: 1, Server: PlayerB, TiebreakFirstServer: PlayerB}); ok {
		t.Error("tiebreaks are not service games")
	}
}
