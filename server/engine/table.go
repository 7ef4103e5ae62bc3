package engine

type Player struct {
	Name string
	Hand []Card
}

func (p *Player) has(c Card) bool {
	for _, h := range p.Hand {
		if h == c {
			return true
		}
	}
	return false
}

// Table owns the players, their hands and the draw pile for a round.
type Table struct {
	Deck      *Deck
	Players   []*Player
	current   int
	direction int
}

func NewTable(deck *Deck, names ...string) *Table {
	t := &Table{Deck: deck, direction: 1}
	for _, n := range names {
		t.Players = append(t.Players, &Player{Name: n})
	}
	return t
}

// DealInitial deals round-robin until every player holds n cards or the deck
// runs dry. A partial deal is not an error.
func (t *Table) DealInitial(n int) {
	for i := 0; i < n; i++ {
		for _, p := range t.Players {
			if t.Deck.Len() == 0 {
				return
			}
			t.Draw(p)
		}
	}
}

// Draw moves one card to p's hand; a no-op on an empty deck.
func (t *Table) Draw(p *Player) {
	c, err := t.Deck.Draw()
	if err != nil {
		return
	}
	p.Hand = append(p.Hand, c)
}

// DealCards draws up to n cards for p and reports how many arrived.
func (t *Table) DealCards(p *Player, n int) int {
	dealt := 0
	for i := 0; i < n && t.Deck.Len() > 0; i++ {
		t.Draw(p)
		dealt++
	}
	return dealt
}

// RemoveFromHand removes the first structural match.
func (t *Table) RemoveFromHand(p *Player, c Card) bool {
	for i, h := range p.Hand {
		if h == c {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Table) Current() *Player { return t.Players[t.current] }

func (t *Table) NextTurn() *Player {
	n := len(t.Players)
	t.current = ((t.current+t.direction)%n + n) % n
	return t.Players[t.current]
}

func (t *Table) ReverseDirection() { t.direction = -t.direction }

func (t *Table) contains(p *Player) bool {
	for _, q := range t.Players {
		if q == p {
			return true
		}
	}
	return false
}

// Reset empties every hand, installs a fresh deck and restarts turn order.
func (t *Table) Reset(deck *Deck) {
	for _, p := range t.Players {
		p.Hand = nil
	}
	t.Deck = deck
	t.current = 0
	t.direction = 1
}
