package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotEligible = errors.New("player not in round or card not in hand")
	ErrRoundOver   = errors.New("round is over")
	ErrNoRound     = errors.New("round not set up")
	ErrShortDeck   = errors.New("deck cannot cover every hand")
)

const (
	penaltyCards     = 2
	rejectPenalty    = 2
	handMatchBonus   = 5
	prophetBonus     = 25
	prophetRatioLow  = 1 // 0.2 = 1/5
	prophetRatioHigh = 4 // 0.8 = 4/5
)

// Game is the round engine. Scores persist across rounds; everything else is
// rebuilt by SetupRound.
type Game struct {
	Table     *Table
	Scores    map[string]int
	Prophet   *Player
	Rule      Rule
	Phase     Phase
	Mainline  []Card
	Sidelines []Sideline
	History   []Event
	Discard   []Card

	over        bool
	circulation int
}

func NewGame(names ...string) *Game {
	g := &Game{
		Table:  NewTable(DeckOf(), names...),
		Scores: make(map[string]int, len(names)),
		Phase:  Playing,
	}
	for _, n := range names {
		g.Scores[n] = 0
	}
	return g
}

// SetupRound installs deck and rule, names the prophet and deals handSize
// cards to everyone. Mainline, sidelines and history start empty.
func (g *Game) SetupRound(prophetIdx int, rule Rule, deck *Deck, handSize int) error {
	if prophetIdx < 0 || prophetIdx >= len(g.Table.Players) {
		return fmt.Errorf("prophet index %d out of range", prophetIdx)
	}
	if rule.Allowed == nil {
		return fmt.Errorf("rule %q has no predicate", rule.Name)
	}
	if need := handSize * len(g.Table.Players); handSize < 0 || deck.Len() < need {
		return fmt.Errorf("%w: %d cards for %d hands of %d", ErrShortDeck, deck.Len(), len(g.Table.Players), handSize)
	}
	g.Table.Reset(deck)
	g.circulation = deck.Len()
	g.Prophet = g.Table.Players[prophetIdx]
	g.Rule = rule
	g.Phase = Playing
	g.Mainline = nil
	g.Sidelines = nil
	g.History = nil
	g.Discard = nil
	g.over = false
	g.Table.DealInitial(handSize)
	return nil
}

func (g *Game) Current() *Player { return g.Table.Current() }

// AttemptPlay evaluates card against the active rule. Ineligible attempts
// return ErrNotEligible and leave every piece of state untouched.
func (g *Game) AttemptPlay(p *Player, card Card) (Outcome, error) {
	if g.Rule.Allowed == nil {
		return "", ErrNoRound
	}
	if g.over || g.Phase == Scoring {
		return "", ErrRoundOver
	}
	if p == nil || !g.Table.contains(p) || !p.has(card) {
		return "", ErrNotEligible
	}

	candidate := append(append(make([]Card, 0, len(g.Mainline)+1), g.Mainline...), card)
	valid := g.Rule.Allowed(candidate)

	outcome := OutcomeInvalid
	if valid {
		outcome = OutcomeValid
		g.Mainline = append(g.Mainline, card)
		g.Scores[p.Name]++
		g.Table.RemoveFromHand(p, card)
		g.record(p, ActionPlay, card.String(), true, 0)
		g.Table.NextTurn()
	} else {
		g.Sidelines = append(g.Sidelines, Sideline{
			Card:     card,
			Mainline: append([]Card(nil), g.Mainline...),
			Player:   p.Name,
		})
		g.Table.RemoveFromHand(p, card)
		dealt := g.Table.DealCards(p, penaltyCards)
		g.record(p, ActionPlay, card.String(), false, dealt)
	}

	if g.handEmptied() {
		g.over = true
		return OutcomeGameOver, nil
	}
	return outcome, nil
}

// PenaltyDraw deals n cards to p as a penalty and returns how many arrived;
// fewer than n means the deck ran out.
func (g *Game) PenaltyDraw(p *Player, n int) int {
	dealt := g.Table.DealCards(p, n)
	g.record(p, ActionPenalty, "", false, dealt)
	return dealt
}

// ClaimProphet hands the prophet marker to p. Only the phase is checked.
func (g *Game) ClaimProphet(p *Player) bool {
	if g.Phase != Playing {
		return false
	}
	g.Prophet = p
	g.record(p, ActionClaim, "", true, 0)
	return true
}

// Terminate ends the round by clearing every hand. Cleared cards go to the
// discard pile.
func (g *Game) Terminate() {
	for _, p := range g.Table.Players {
		g.Discard = append(g.Discard, p.Hand...)
		p.Hand = nil
	}
	g.over = true
}

// ScoreRound moves the round to SCORING and applies the end-of-round
// adjustments. It returns the per-player deltas; a round already scored
// yields an empty delta.
func (g *Game) ScoreRound() map[string]int {
	if g.Phase == Scoring {
		return map[string]int{}
	}
	g.Phase = Scoring
	g.over = true
	delta := make(map[string]int, len(g.Table.Players))

	for _, s := range g.Sidelines {
		delta[s.Player] -= rejectPenalty
	}
	// Mainline cards are compared against the hand the player holds now,
	// not against who played them.
	for _, p := range g.Table.Players {
		n := 0
		for _, c := range g.Mainline {
			if p.has(c) {
				n++
			}
		}
		delta[p.Name] += n * handMatchBonus
	}
	if g.Prophet != nil && g.ProphetBonusEarned() {
		delta[g.Prophet.Name] += prophetBonus
	}

	for name, d := range delta {
		g.Scores[name] += d
	}
	return delta
}

// ProphetBonusEarned reports 0.2 <= valid/(valid+invalid) <= 0.8 using exact
// integer arithmetic. No plays means no bonus.
func (g *Game) ProphetBonusEarned() bool {
	valid := len(g.Mainline)
	total := valid + len(g.Sidelines)
	if total == 0 {
		return false
	}
	return 5*valid >= prophetRatioLow*total && 5*valid <= prophetRatioHigh*total
}

// IsOver is true once any hand is empty or the round was terminated/scored.
func (g *Game) IsOver() bool { return g.over || g.handEmptied() }

func (g *Game) handEmptied() bool {
	for _, p := range g.Table.Players {
		if len(p.Hand) == 0 {
			return true
		}
	}
	return false
}

// CheckConservation verifies that no card was created or lost this round.
func (g *Game) CheckConservation() error {
	n := len(g.Mainline) + len(g.Sidelines) + g.Table.Deck.Len() + len(g.Discard)
	for _, p := range g.Table.Players {
		n += len(p.Hand)
	}
	if n != g.circulation {
		return fmt.Errorf("card count %d, want %d", n, g.circulation)
	}
	return nil
}

func (g *Game) record(p *Player, kind ActionKind, card string, valid bool, dealt int) {
	g.History = append(g.History, Event{
		Turn:     len(g.History),
		Player:   p.Name,
		Action:   kind,
		Card:     card,
		Valid:    valid,
		Dealt:    dealt,
		Mainline: CardsToStr(g.Mainline),
		Scores:   g.scoresCopy(),
	})
}

func (g *Game) scoresCopy() map[string]int {
	out := make(map[string]int, len(g.Scores))
	for k, v := range g.Scores {
		out[k] = v
	}
	return out
}

// Snapshot copies the round state. The rule description is only included
// when withRule is set.
func (g *Game) Snapshot(withRule bool) Snapshot {
	s := Snapshot{
		Phase:    g.Phase,
		Mainline: CardsToStr(g.Mainline),
		Scores:   g.scoresCopy(),
		Hands:    make(map[string][]string, len(g.Table.Players)),
		DeckLeft: g.Table.Deck.Len(),
		Over:     g.IsOver(),
	}
	if g.Prophet != nil {
		s.Prophet = g.Prophet.Name
	}
	if len(g.Table.Players) > 0 {
		s.Current = g.Table.Current().Name
	}
	if withRule {
		s.Rule = g.Rule.Description
	}
	for _, sl := range g.Sidelines {
		s.Sidelines = append(s.Sidelines, SidelineView{
			Card:     sl.Card.String(),
			Player:   sl.Player,
			Mainline: CardsToStr(sl.Mainline),
		})
	}
	for _, p := range g.Table.Players {
		s.Hands[p.Name] = CardsToStr(p.Hand)
	}
	return s
}
