package engine

type Rank string

type Suit string

const (
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
	Spades   Suit = "♠"
)

type Color string

const (
	Red   Color = "red"
	Black Color = "black"
)

type Card struct {
	Rank Rank
	Suit Suit
} // e.g. "10♥" => rank "10", suit ♥

type Phase string

const (
	Playing       Phase = "playing"
	RuleDiscovery Phase = "rule_discovery"
	Scoring       Phase = "scoring"
)

// Outcome is the three-valued result of AttemptPlay.
type Outcome string

const (
	OutcomeValid    Outcome = "valid_play"
	OutcomeInvalid  Outcome = "invalid_play"
	OutcomeGameOver Outcome = "game_over"
)

type ActionKind string

const (
	ActionPlay    ActionKind = "play"
	ActionPenalty ActionKind = "penalty"
	ActionClaim   ActionKind = "claim_prophet"
)

// Sideline is a rejected card with the mainline as it stood at rejection.
type Sideline struct {
	Card     Card
	Mainline []Card
	Player   string
}

// Event is one entry of the round's audit trail.
type Event struct {
	Turn     int            `json:"turn"`
	Player   string         `json:"player"`
	Action   ActionKind     `json:"action"`
	Card     string         `json:"card,omitempty"`
	Valid    bool           `json:"valid"`
	Dealt    int            `json:"dealt,omitempty"`
	Mainline []string       `json:"mainline"`
	Scores   map[string]int `json:"scores"`
}

// Snapshot is a read-only copy of the round state.
type Snapshot struct {
	Phase     Phase               `json:"phase"`
	Prophet   string              `json:"prophet"`
	Current   string              `json:"current_player"`
	Rule      string              `json:"rule,omitempty"`
	Mainline  []string            `json:"mainline"`
	Sidelines []SidelineView      `json:"sidelines"`
	Scores    map[string]int      `json:"scores"`
	Hands     map[string][]string `json:"hands"`
	DeckLeft  int                 `json:"deck_left"`
	Over      bool                `json:"over"`
}

type SidelineView struct {
	Card     string   `json:"card"`
	Player   string   `json:"player"`
	Mainline []string `json:"mainline"`
}
