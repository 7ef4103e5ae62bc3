package session

import (
	"context"
	"time"
)

type RecordKind string

const (
	KindTurn     RecordKind = "turn"
	KindRoundEnd RecordKind = "round_end"
)

// Outcomes beyond the engine's three.
const (
	OutcomeSkipped = "skipped"
	OutcomeNoPlay  = "no_play"
)

// Record is one line of the session history. It carries enough state to
// replay or audit the round.
type Record struct {
	Session          string         `json:"session"`
	Round            int            `json:"round"`
	Turn             int            `json:"turn"`
	Kind             RecordKind     `json:"kind"`
	Player           string         `json:"player,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	RuleName         string         `json:"rule_name"`
	Rule             string         `json:"rule"`
	Prophet          string         `json:"prophet,omitempty"`
	CardIndex        *int           `json:"card_index,omitempty"`
	CardPlayed       string         `json:"card_played,omitempty"`
	Outcome          string         `json:"outcome,omitempty"`
	WasValid         *bool          `json:"was_valid,omitempty"`
	PenaltyDealt     int            `json:"penalty_dealt,omitempty"`
	DeckShort        bool           `json:"deck_short,omitempty"`
	Hypothesis       string         `json:"hypothesis,omitempty"`
	HypothesisValid  *bool          `json:"hypothesis_valid,omitempty"`
	HypothesisReason string         `json:"hypothesis_reason,omitempty"`
	Result           string         `json:"result"`
	Error            string         `json:"error,omitempty"`
	ScoreDelta       map[string]int `json:"score_delta,omitempty"`
	State            State          `json:"game_state"`
}

type State struct {
	Mainline          []string       `json:"mainline"`
	Scores            map[string]int `json:"scores"`
	CurrentPlayerHand []string       `json:"current_player_hand,omitempty"`
	DeckLeft          int            `json:"deck_left"`
}

// Sink receives every record in order.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

func boolPtr(b bool) *bool { return &b }
