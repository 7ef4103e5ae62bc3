package main

import (
	"sort"

	"eleusis-bench/server/session"
)

type PlayerStats struct {
	Player       string `json:"player"`
	Turns        int    `json:"turns"`
	Plays        int    `json:"plays"`
	Valid        int    `json:"valid"`
	Invalid      int    `json:"invalid"`
	Hypotheses   int    `json:"hypotheses"`
	Correct      int    `json:"correct"`
	PenaltyCards int    `json:"penalty_cards"`
	Skipped      int    `json:"skipped"`
	Errors       int    `json:"errors"`
	Score        int    `json:"score"`
}

// ValidRate is the share of played cards the rule accepted.
func (s *PlayerStats) ValidRate() float64 {
	if s.Plays == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Plays)
}

// sessionStats tallies turn records per player, sorted by score then name.
// Scores come from the last record that carries them.
func sessionStats(recs []session.Record) []*PlayerStats {
	by := map[string]*PlayerStats{}
	get := func(name string) *PlayerStats {
		s, ok := by[name]
		if !ok {
			s = &PlayerStats{Player: name}
			by[name] = s
		}
		return s
	}
	var last map[string]int
	for _, r := range recs {
		if r.State.Scores != nil {
			last = r.State.Scores
		}
		if r.Kind != session.KindTurn || r.Player == "" {
			continue
		}
		s := get(r.Player)
		s.Turns++
		s.PenaltyCards += r.PenaltyDealt
		if r.Outcome == session.OutcomeSkipped {
			s.Skipped++
		}
		if r.Error != "" {
			s.Errors++
		}
		if r.WasValid != nil {
			s.Plays++
			if *r.WasValid {
				s.Valid++
			} else {
				s.Invalid++
			}
		}
		if r.Hypothesis != "" {
			s.Hypotheses++
			if r.HypothesisValid != nil && *r.HypothesisValid {
				s.Correct++
			}
		}
	}
	for name, v := range last {
		get(name).Score = v
	}
	out := make([]*PlayerStats, 0, len(by))
	for _, s := range by {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Player < out[j].Player
	})
	return out
}
