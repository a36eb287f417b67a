package sportscore

// Event is a live tennis event as returned by the SportScore API.
// Scores arrive as loosely typed maps: per-set game counts under
// "period_N" keys, set totals under "current", and the in-game point
// under "point" in tennis notation ("0", "15", "30", "40", "AD").
type Event struct {
	ID           int64                  `json:"id"`
	Slug         string                 `json:"slug"`
	Status       string                 `json:"status"`
	StatusMore   string                 `json:"status_more"`
	HomeTeam     Competitor             `json:"home_team"`
	AwayTeam     Competitor             `json:"away_team"`
	HomeScore    map[string]interface{} `json:"home_score"`
	AwayScore    map[string]interface{} `json:"away_score"`
	FirstSupply  int                    `json:"first_supply"`
	LastedPeriod string                 `json:"lasted_period"`
	League       League                 `json:"league"`
}

// Competitor is one side of an event. For tennis this is a player.
type Competitor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// League carries tournament metadata.
type League struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SurfaceType string `json:"surface_type"`
}

// eventsResponse is the envelope around event listings.
type eventsResponse struct {
	Data []Event `json:"data"`
}
