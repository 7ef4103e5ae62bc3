package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

var ErrEmptyDeck = errors.New("no cards left in the deck")

var (
	ranks = []Rank{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
	suits = []Suit{Hearts, Diamonds, Clubs, Spades}
)

// NewCard validates rank and suit.
func NewCard(rank Rank, suit Suit) (Card, error) {
	if rank.Value() == 0 {
		return Card{}, fmt.Errorf("invalid rank %q", string(rank))
	}
	switch suit {
	case Hearts, Diamonds, Clubs, Spades:
	default:
		return Card{}, fmt.Errorf("invalid suit %q", string(suit))
	}
	return Card{Rank: rank, Suit: suit}, nil
}

// ParseCard reads the String form, e.g. "10♥" or "K♣".
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	for _, su := range suits {
		if strings.HasSuffix(s, string(su)) {
			return NewCard(Rank(strings.TrimSuffix(s, string(su))), su)
		}
	}
	return Card{}, fmt.Errorf("invalid card %q", s)
}

// Value is the numeric rank: A=1, J=11, Q=12, K=13.
func (r Rank) Value() int {
	switch r {
	case "A":
		return 1
	case "J":
		return 11
	case "Q":
		return 12
	case "K":
		return 13
	}
	n, err := strconv.Atoi(string(r))
	if err != nil || n < 2 || n > 10 {
		return 0
	}
	return n
}

func (c Card) Color() Color {
	if c.Suit == Hearts || c.Suit == Diamonds {
		return Red
	}
	return Black
}

func (c Card) RankValue() int { return c.Rank.Value() }

// IsFace reports J, Q and K. Aces are not face cards.
func (c Card) IsFace() bool { return c.Rank == "J" || c.Rank == "Q" || c.Rank == "K" }

func (c Card) String() string { return string(c.Rank) + string(c.Suit) }

// CardsToStr renders a sequence as strings, used by snapshots and logs.
func CardsToStr(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

// Deck is consumed from the end.
type Deck struct {
	cards []Card
}

// NewDeck builds copies × 52 cards in a fixed order.
func NewDeck(copies int) *Deck {
	if copies < 1 {
		copies = 1
	}
	d := &Deck{cards: make([]Card, 0, copies*52)}
	for i := 0; i < copies; i++ {
		for _, s := range suits {
			for _, r := range ranks {
				d.cards = append(d.cards, Card{Rank: r, Suit: s})
			}
		}
	}
	return d
}

// NewShuffledDeck mirrors the common path: build then shuffle with a seeded source.
func NewShuffledDeck(copies int, seed int64) *Deck {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d := NewDeck(copies)
	d.Shuffle(rand.New(rand.NewSource(seed)))
	return d
}

// DeckOf builds a deck whose next draws come from the end of cards.
func DeckOf(cards ...Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

func (d *Deck) Shuffle(r *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

func (d *Deck) Len() int { return len(d.cards) }
