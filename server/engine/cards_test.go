package engine

import (
	"errors"
	"math/rand"
	"testing"
)

func mustCard(t *testing.T, s string) Card {
	t.Helper()
	c, err := ParseCard(s)
	if err != nil {
		t.Fatalf("ParseCard(%q): %v", s, err)
	}
	return c
}

func TestNewDeckComposition(t *testing.T) {
	d := NewDeck(2)
	if d.Len() != 104 {
		t.Fatalf("expected 104 cards, got %d", d.Len())
	}
	seen := map[Card]int{}
	for d.Len() > 0 {
		c, err := d.Draw()
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		seen[c]++
	}
	if len(seen) != 52 {
		t.Fatalf("expected 52 distinct cards, got %d", len(seen))
	}
	for c, n := range seen {
		if n != 2 {
			t.Fatalf("expected %s twice, got %d", c, n)
		}
	}
}

func TestDrawShrinksAndFailsWhenEmpty(t *testing.T) {
	d := DeckOf(mustCard(t, "2♥"))
	if _, err := d.Draw(); err != nil {
		t.Fatalf("first draw: %v", err)
	}
	if d.Len() != 0 {
		t.Fatalf("expected empty deck, got %d", d.Len())
	}
	if _, err := d.Draw(); !errors.Is(err, ErrEmptyDeck) {
		t.Fatalf("expected ErrEmptyDeck, got %v", err)
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a, b := NewDeck(1), NewDeck(1)
	a.Shuffle(rand.New(rand.NewSource(7)))
	b.Shuffle(rand.New(rand.NewSource(7)))
	for a.Len() > 0 {
		x, _ := a.Draw()
		y, _ := b.Draw()
		if x != y {
			t.Fatalf("same seed gave different order: %s vs %s", x, y)
		}
	}
}

func TestCardProperties(t *testing.T) {
	tests := []struct {
		in    string
		value int
		color Color
		face  bool
	}{
		{"A♠", 1, Black, false},
		{"2♥", 2, Red, false},
		{"10♦", 10, Red, false},
		{"J♣", 11, Black, true},
		{"Q♥", 12, Red, true},
		{"K♠", 13, Black, true},
	}
	for _, tt := range tests {
		c := mustCard(t, tt.in)
		if c.RankValue() != tt.value || c.Color() != tt.color || c.IsFace() != tt.face {
			t.Fatalf("%s: got value=%d color=%s face=%v", tt.in, c.RankValue(), c.Color(), c.IsFace())
		}
		if c.String() != tt.in {
			t.Fatalf("round trip: expected %q, got %q", tt.in, c.String())
		}
	}
}

func TestParseCardRejectsUnknown(t *testing.T) {
	for _, s := range []string{"1♥", "11♣", "KX", "", "T♠"} {
		if _, err := ParseCard(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}
