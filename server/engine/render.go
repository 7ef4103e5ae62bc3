package engine

import (
	"fmt"
	"strings"
)

func joinChain(cs []string) string { return strings.Join(cs, " → ") }

func (g *Game) mainlineText() string {
	if len(g.Mainline) == 0 {
		return "Empty"
	}
	return joinChain(CardsToStr(g.Mainline))
}

func (g *Game) sidelinesText(verb string) string {
	if len(g.Sidelines) == 0 {
		return "None"
	}
	lines := make([]string, len(g.Sidelines))
	for i, s := range g.Sidelines {
		lines[i] = fmt.Sprintf("  %s %s when mainline was: %s", s.Card, verb, joinChain(CardsToStr(s.Mainline)))
	}
	return strings.Join(lines, "\n")
}

func (g *Game) scoresText() string {
	lines := make([]string, len(g.Table.Players))
	for i, p := range g.Table.Players {
		lines[i] = fmt.Sprintf("  %s: %d points", p.Name, g.Scores[p.Name])
	}
	return strings.Join(lines, "\n")
}

// DescribeState is the overseer view. It includes the rule description.
func (g *Game) DescribeState() string {
	prophet := "None"
	if g.Prophet != nil {
		prophet = g.Prophet.Name
	}
	var b strings.Builder
	b.WriteString("\n=== ELEUSIS GAME STATE ===\n")
	section := func(k, v string) { fmt.Fprintf(&b, "\n%s:\n%s\n", k, v) }
	section("Current Phase", strings.ToUpper(string(g.Phase)))
	section("Prophet", prophet)
	section("Current Player", g.Table.Current().Name)
	section("Mainline", g.mainlineText())
	section("Invalid Plays", g.sidelinesText("(invalid)"))
	section("Scores", g.scoresText())
	section("Current Rule", g.Rule.Description)
	b.WriteString("\n=======================")
	return b.String()
}

// PerspectiveFor renders the round as p sees it. The rule is never shown.
func (g *Game) PerspectiveFor(p *Player) string {
	turn := "it's your turn"
	if cur := g.Table.Current(); cur != p {
		turn = fmt.Sprintf("it's currently %s's turn", cur.Name)
	}
	return fmt.Sprintf(`
=== ELEUSIS GAME STATE FOR %s ===

Your Hand:
%s

Current Mainline (Valid Plays):
%s

History of Invalid Plays:
%s

Current Scores:
%s

You are %s and %s
`, p.Name, strings.Join(CardsToStr(p.Hand), ", "), g.mainlineText(), g.sidelinesText("was invalid"), g.scoresText(), p.Name, turn)
}
