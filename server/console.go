package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"

	"eleusis-bench/server/engine"
	"eleusis-bench/server/session"
)

// console prints a human-readable trace of a running session.
type console struct {
	showRule bool
}

func newConsole(noColor, showRule bool) *console {
	if noColor {
		pterm.DisableColor()
	}
	return &console{showRule: showRule}
}

func (c *console) banner(id string, players []string, policy string) {
	pterm.DefaultHeader.WithFullWidth().Println("Eleusis")
	pterm.Info.Printfln("session %s  players %s  policy %s", id, strings.Join(players, ", "), policy)
}

func (c *console) roundStart(round int, g *engine.Game) {
	pterm.DefaultSection.Printfln("Round %d", round)
	pterm.Printfln("%s %s", pterm.Gray("prophet"), pterm.LightMagenta(g.Prophet.Name))
	if c.showRule {
		pterm.Printfln("%s %s", pterm.Gray("rule"), pterm.LightYellow(g.Rule.Description))
	}
}

func (c *console) record(r session.Record) {
	if r.Kind == session.KindRoundEnd {
		c.roundEnd(r)
		return
	}
	who := pterm.LightCyan(r.Player)
	switch {
	case r.Outcome == session.OutcomeSkipped:
		pterm.Warning.Printfln("%s skipped: %s", who, r.Error)
	case r.WasValid != nil && *r.WasValid:
		pterm.Success.Printfln("%s played %s", who, r.CardPlayed)
	case r.WasValid != nil:
		pterm.Error.Printfln("%s played %s, rejected (+%d cards)", who, r.CardPlayed, r.PenaltyDealt)
	case r.Error != "":
		pterm.Warning.Printfln("%s: %s", who, r.Error)
	}
	if r.Hypothesis != "" {
		verdict := pterm.Gray("unjudged")
		if r.HypothesisValid != nil && *r.HypothesisValid {
			verdict = pterm.LightGreen(r.HypothesisReason)
		} else if r.HypothesisReason != "" {
			verdict = pterm.LightRed(r.HypothesisReason)
		}
		pterm.Printfln("  %s %q %s", pterm.Gray("hypothesis"), r.Hypothesis, verdict)
	}
	if r.DeckShort {
		pterm.Warning.Printfln("deck ran short while dealing penalties")
	}
}

func (c *console) roundEnd(r session.Record) {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule: %s\n", r.Rule)
	fmt.Fprintf(&b, "Mainline: %s\n", strings.Join(r.State.Mainline, " → "))
	names := make([]string, 0, len(r.ScoreDelta))
	for n := range r.ScoreDelta {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "%s: %+d (total %d)\n", n, r.ScoreDelta[n], r.State.Scores[n])
	}
	pterm.DefaultBox.
		WithTitle(pterm.LightYellow(fmt.Sprintf("|ROUND %d SCORED|", r.Round))).
		WithTitleTopCenter().
		WithHorizontalPadding(2).
		Println(strings.TrimRight(b.String(), "\n"))
}

func (c *console) final(stats []*PlayerStats, logPath string) {
	pterm.DefaultSection.Println("Final standings")
	data := pterm.TableData{{"Player", "Score", "Plays", "Valid %", "Hypotheses", "Correct", "Penalty cards"}}
	for _, s := range stats {
		data = append(data, []string{
			s.Player,
			fmt.Sprint(s.Score),
			fmt.Sprint(s.Plays),
			fmt.Sprintf("%.0f", 100*s.ValidRate()),
			fmt.Sprint(s.Hypotheses),
			fmt.Sprint(s.Correct),
			fmt.Sprint(s.PenaltyCards),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	if logPath != "" {
		pterm.Info.Printfln("history written to %s", logPath)
	}
}
