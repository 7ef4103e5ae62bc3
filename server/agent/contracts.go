package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"eleusis-bench/server/engine"
)

var (
	ErrIndexOutOfRange  = errors.New("card index out of range")
	ErrMalformedVerdict = errors.New("malformed verdict")
	// ErrMalformedDecision marks a reply that arrived but held no usable
	// action. It is not retried and does not count as a failure.
	ErrMalformedDecision = errors.New("malformed decision")
)

// Observation is what a player sees on their turn. It never carries the rule.
type Observation struct {
	Player      string         `json:"player"`
	Hand        []string       `json:"hand"`
	Mainline    []string       `json:"mainline"`
	Sidelines   []SidelineObs  `json:"sidelines"`
	Scores      map[string]int `json:"scores"`
	CurrentTurn string         `json:"current_turn"`
	YourTurn    bool           `json:"your_turn"`
	DeckLeft    int            `json:"deck_left"`
	Round       int            `json:"round"`
	Notes       []Note         `json:"previous_hypotheses,omitempty"`
	Perspective string         `json:"-"` // rendered text for prompt-based players
}

type SidelineObs struct {
	Card     string   `json:"card"`
	Mainline []string `json:"mainline"`
}

// Note is an earlier hypothesis by the same player and how it was judged.
type Note struct {
	Hypothesis string `json:"hypothesis"`
	Result     string `json:"result"`
}

// Decision is the player's answer. Both parts are optional.
type Decision struct {
	CardIndex  *int   `json:"card_index,omitempty"`
	Hypothesis string `json:"general_hypothesis,omitempty"`
}

type Reason string

const (
	ReasonCorrect               Reason = "CORRECT"
	ReasonMainlineContradiction Reason = "INCORRECT_MAINLINE_CONTRADICTION"
	ReasonHistoryContradiction  Reason = "INCORRECT_HISTORY_CONTRADICTION"
	ReasonIncorrect             Reason = "INCORRECT"
)

type Verdict struct {
	Valid  bool   `json:"is_valid"`
	Reason Reason `json:"reason"`
}

// Hypothesis is what the judge receives. State is the overseer view.
type Hypothesis struct {
	Text  string
	Rule  string
	State string
}

// DecisionSource picks an action for one turn.
type DecisionSource interface {
	Decide(ctx context.Context, obs Observation) (Decision, error)
}

// HypothesisJudge rules on a free-text guess at the hidden rule.
type HypothesisJudge interface {
	Judge(ctx context.Context, h Hypothesis) (Verdict, error)
}

// BuildObservation converts engine state into the view sent to player p.
func BuildObservation(g *engine.Game, p *engine.Player, round int, notes []Note) Observation {
	cur := g.Current()
	snap := g.Snapshot(false)
	o := Observation{
		Player:      p.Name,
		Hand:        engine.CardsToStr(p.Hand),
		Mainline:    snap.Mainline,
		Scores:      snap.Scores,
		CurrentTurn: cur.Name,
		YourTurn:    cur == p,
		DeckLeft:    snap.DeckLeft,
		Round:       round,
		Notes:       append([]Note(nil), notes...),
		Perspective: g.PerspectiveFor(p),
	}
	for _, s := range snap.Sidelines {
		o.Sidelines = append(o.Sidelines, SidelineObs{Card: s.Card, Mainline: s.Mainline})
	}
	return o
}

// Validate checks the decision against the observation.
func Validate(o Observation, d Decision) error {
	if d.CardIndex != nil && (*d.CardIndex < 0 || *d.CardIndex >= len(o.Hand)) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, *d.CardIndex, len(o.Hand))
	}
	return nil
}

// ParseReason accepts the reason codes with spaces, dashes or any casing.
func ParseReason(s string) (Reason, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch r := Reason(norm); r {
	case ReasonCorrect, ReasonMainlineContradiction, ReasonHistoryContradiction, ReasonIncorrect:
		return r, nil
	}
	return "", fmt.Errorf("%w: reason %q", ErrMalformedVerdict, s)
}

// NewVerdict builds a verdict from raw judge output. Valid is only honoured
// together with CORRECT.
func NewVerdict(valid bool, reason string) (Verdict, error) {
	r, err := ParseReason(reason)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Valid: valid && r == ReasonCorrect, Reason: r}, nil
}
