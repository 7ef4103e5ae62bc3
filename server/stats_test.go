package main

import (
	"testing"

	"eleusis-bench/server/session"
)

func TestSessionStatsTallies(t *testing.T) {
	yes, no := true, false
	recs := []session.Record{
		{Kind: session.KindTurn, Player: "A", WasValid: &yes},
		{Kind: session.KindTurn, Player: "A", WasValid: &no, PenaltyDealt: 2},
		{Kind: session.KindTurn, Player: "B", Hypothesis: "red", HypothesisValid: &no, PenaltyDealt: 2},
		{Kind: session.KindTurn, Player: "B", Outcome: session.OutcomeSkipped, Error: "timeout"},
		{Kind: session.KindTurn, Player: "B", Hypothesis: "alternate", HypothesisValid: &yes},
		{Kind: session.KindRoundEnd, State: session.State{Scores: map[string]int{"A": -1, "B": 3}}},
	}
	stats := sessionStats(recs)
	if len(stats) != 2 || stats[0].Player != "B" {
		t.Fatalf("expected B first by score, got %+v", stats)
	}
	b, a := stats[0], stats[1]
	if b.Turns != 3 || b.Hypotheses != 2 || b.Correct != 1 || b.Skipped != 1 || b.Errors != 1 || b.PenaltyCards != 2 || b.Score != 3 {
		t.Fatalf("unexpected B stats %+v", b)
	}
	if a.Plays != 2 || a.Valid != 1 || a.Invalid != 1 || a.ValidRate() != 0.5 || a.Score != -1 {
		t.Fatalf("unexpected A stats %+v", a)
	}
}

func TestValidRateNoPlays(t *testing.T) {
	if (&PlayerStats{}).ValidRate() != 0 {
		t.Fatalf("expected zero rate without plays")
	}
}
