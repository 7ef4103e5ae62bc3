package engine

import (
	"math/rand"
	"strings"
	"time"
)

// Rule is a pure predicate over the played sequence. The candidate card is
// the last element of the slice passed to Allowed.
type Rule struct {
	Name        string
	Description string
	Allowed     func(cards []Card) bool
}

// lastTwo returns the previous and candidate cards, ok=false when fewer than
// two cards exist and therefore nothing can be constrained yet.
func lastTwo(cards []Card) (prev, cur Card, ok bool) {
	if len(cards) < 2 {
		return Card{}, Card{}, false
	}
	return cards[len(cards)-2], cards[len(cards)-1], true
}

func alternateColors(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || cur.Color() != prev.Color()
}

func sameSuitOrRank(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || cur.Suit == prev.Suit || cur.Rank == prev.Rank
}

func oddEvenAlternating(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || prev.RankValue()%2 != cur.RankValue()%2
}

func redAfterFace(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || !prev.IsFace() || cur.Color() == Red
}

func sumUnder15(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || prev.RankValue()+cur.RankValue() <= 15
}

func sameColorAsPrevSuit(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	if !ok {
		return true
	}
	suitColor := Black
	if prev.Suit == Hearts || prev.Suit == Diamonds {
		suitColor = Red
	}
	return cur.Color() == suitColor
}

func higherAfterHearts(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	if !ok || prev.Suit != Hearts {
		return true
	}
	return cur.RankValue() > prev.RankValue()
}

func blackAfterEven(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || prev.RankValue()%2 != 0 || cur.Color() == Black
}

func noConsecutiveFaces(cards []Card) bool {
	prev, cur, ok := lastTwo(cards)
	return !ok || !(prev.IsFace() && cur.IsFace())
}

// Catalogue returns the classic rule list. The slice is fresh on every call.
func Catalogue() []Rule {
	return []Rule{
		{"alternate_colors", "Cards must alternate between red and black", alternateColors},
		{"same_suit_or_rank", "Each card must share either suit or rank with the previous card", sameSuitOrRank},
		{"odd_even_alternating", "Cards must alternate between odd and even ranks", oddEvenAlternating},
		{"red_after_face", "After a face card (J,Q,K), must play a red card", redAfterFace},
		{"sum_under_15", "Sum of two last consecutive card values must be under 15", sumUnder15},
		{"same_color_as_prev_suit", "Card color must match the color of the previous card's suit", sameColorAsPrevSuit},
		{"higher_after_hearts", "After a heart, next card must be higher rank", higherAfterHearts},
		{"black_after_even", "After an even rank, must play a black card", blackAfterEven},
		{"no_consecutive_faces", "Cannot play two face cards in a row", noConsecutiveFaces},
	}
}

// RuleSet draws rules from a fixed catalogue using an injected source.
type RuleSet struct {
	rules []Rule
	rng   *rand.Rand
}

// NewRuleSet uses the classic catalogue plus any extra rules. A nil rng is
// replaced with a time-seeded source.
func NewRuleSet(rng *rand.Rand, extra ...Rule) *RuleSet {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RuleSet{rules: append(Catalogue(), extra...), rng: rng}
}

func (rs *RuleSet) Rules() []Rule { return append([]Rule(nil), rs.rules...) }

// Random picks uniformly over the catalogue.
func (rs *RuleSet) Random() Rule {
	return rs.rules[rs.rng.Intn(len(rs.rules))]
}

// Lookup matches a rule by name or, failing that, by description.
func (rs *RuleSet) Lookup(key string) (Rule, bool) {
	key = strings.TrimSpace(key)
	for _, r := range rs.rules {
		if r.Name == key {
			return r, true
		}
	}
	for _, r := range rs.rules {
		if strings.EqualFold(r.Description, key) {
			return r, true
		}
	}
	return Rule{}, false
}
