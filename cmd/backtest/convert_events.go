//go:build ignore
// +build ignore

// This script converts recorded SportScore event snapshots into a
// backtest match log.
// Usage: go run convert_events.go -input snapshots.json -output match.json -ticker TENNIS-X
//
// The input is a JSON array of {"timestamp": RFC3339, "event": <event>,
// "yes_bid": int, "yes_ask": int} records for a single match, in
// arbitrary order.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"
	"time"

	"github.com/courtedge/tennis-agents/pkg/sportscore"
	"github.com/courtedge/tennis-agents/pkg/trader/backtest"
)

type snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Event     sportscore.Event `json:"event"`
	YesBid    int64            `json:"yes_bid,omitempty"`
	YesAsk    int64            `json:"yes_ask,omitempty"`
}

var (
	inputFile  = flag.String("input", "", "Input JSON file with event snapshots")
	outputFile = flag.String("output", "match.json", "Output match log file")
	ticker     = flag.String("ticker", "", "Market ticker for the log")
	bestOf     = flag.Int("best-of", 3, "Sets per match")
)

func main() {
	flag.Parse()

	if *inputFile == "" || *ticker == "" {
		log.Fatal("Please provide -input and -ticker")
	}

	raw, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	var snapshots []snapshot
	if err := json.Unmarshal(raw, &snapshots); err != nil {
		log.Fatalf("Failed to parse input: %v", err)
	}
	if len(snapshots) == 0 {
		log.Fatal("No snapshots in input")
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	matchLog := &backtest.MatchLog{
		Ticker:     *ticker,
		Match:      snapshots[0].Event.HomeTeam.Name + " vs " + snapshots[0].Event.AwayTeam.Name,
		BestOfSets: *bestOf,
	}

	var skipped int
	for _, snap := range snapshots {
		state, err := sportscore.ParseState(&snap.Event)
		if err != nil {
			skipped++
			continue
		}
		tick := backtest.Tick{
			Timestamp: snap.Timestamp,
			Ticker:    *ticker,
			State:     state,
			YesBid:    snap.YesBid,
			YesAsk:    snap.YesAsk,
		}
		if snap.YesBid > 0 && snap.YesAsk > 0 {
			tick.MidCents = float64(snap.YesBid+snap.YesAsk) / 2
		}
		matchLog.Ticks = append(matchLog.Ticks, tick)
	}
	if len(matchLog.Ticks) == 0 {
		log.Fatal("No parseable snapshots")
	}

	out, err := json.MarshalIndent(matchLog, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal log: %v", err)
	}
	if err := os.WriteFile(*outputFile, out, 0644); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	log.Printf("Wrote %d ticks to %s (%d snapshots skipped)",
		len(matchLog.Ticks), *outputFile, skipped)
}
