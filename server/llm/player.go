package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"eleusis-bench/server/agent"
)

//go:embed eleusis_rules.md
var DefaultRules string

const hypothesisHelp = `The most probable hypothesis about the rule of the game, coherent with the whole history.
The rule can use any combination of card colours (red/black), ranks (Ace=1, 2-10, J=11, Q=12, K=13), suits (♥, ♦, ♣, ♠) and relationships between consecutive cards.
It must accept every mainline card and reject every invalid play.
Example: "After a heart, next card must be higher rank." Leave empty to play without guessing.`

// Player asks a model which card to play and what the rule might be.
type Player struct {
	Client *Client
	Rules  string
	Opts   PingOptions
}

func NewPlayer(c *Client, rules string) *Player {
	if strings.TrimSpace(rules) == "" {
		rules = DefaultRules
	}
	return &Player{Client: c, Rules: rules, Opts: EnvPingOptions()}
}

func (p *Player) Decide(ctx context.Context, obs agent.Observation) (agent.Decision, error) {
	system := "You are a player of Eleusis. Here are the rules of the game:\n\n" + p.Rules
	user := playerPrompt(obs)
	opts := p.Opts
	opts.StructuredSchemaName = "eleusis_action"
	opts.StructuredSchema = decisionSchema(len(obs.Hand))
	opts.StructuredStrict = true

	parsed, raw, err := p.Client.completeJSON(ctx, system, user, opts)
	if errors.Is(err, ErrNoJSON) {
		return agent.Decision{}, fmt.Errorf("%w: %v", agent.ErrMalformedDecision, err)
	}
	if err != nil {
		return agent.Decision{}, err
	}
	d, ok := coerceDecision(parsed)
	if !ok {
		return agent.Decision{}, fmt.Errorf("%w: no usable action in response: %s", agent.ErrMalformedDecision, truncate(raw, 200))
	}
	return d, nil
}

func playerPrompt(obs agent.Observation) string {
	var b strings.Builder
	b.WriteString("This is the current state of the game:\n\n")
	b.WriteString(obs.Perspective)
	if len(obs.Notes) > 0 {
		b.WriteString("\n\nYour previous hypotheses this session:\n")
		for _, n := range obs.Notes {
			fmt.Fprintf(&b, "- %q judged %s\n", n.Hypothesis, n.Result)
		}
	}
	b.WriteString("\n\nThe goal is to find the rule that produced this mainline and rejected every invalid play. ")
	b.WriteString("The rule is general: it can produce many mainlines with the same logic. ")
	b.WriteString("Reply with JSON holding general_hypothesis and card_index.")
	return b.String()
}

func decisionSchema(handSize int) map[string]any {
	hi := handSize - 1
	if hi < 0 {
		hi = 0
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"general_hypothesis": map[string]any{
				"type":        "string",
				"description": hypothesisHelp,
			},
			"card_index": map[string]any{
				"type":        []any{"integer", "null"},
				"minimum":     0,
				"maximum":     hi,
				"description": "The index of the card to play, starting from 0, or null to only state a hypothesis",
			},
		},
		"required": []string{"general_hypothesis", "card_index"},
	}
}

// coerceDecision accepts the index as a number or numeric string. Range
// checks are left to agent.Validate so the error lands on the turn record.
func coerceDecision(parsed map[string]any) (agent.Decision, bool) {
	var d agent.Decision
	if v, ok := parsed["general_hypothesis"].(string); ok {
		d.Hypothesis = strings.TrimSpace(v)
	}
	raw, ok := parsed["card_index"]
	if !ok {
		raw = parsed["index_of_card_to_play"]
	}
	switch t := raw.(type) {
	case nil:
	case float64:
		if t != float64(int(t)) {
			return agent.Decision{}, false
		}
		d = withIndex(d, int(t))
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return agent.Decision{}, false
		}
		d = withIndex(d, int(n))
	case string:
		if strings.TrimSpace(t) == "" {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return agent.Decision{}, false
		}
		d = withIndex(d, n)
	default:
		return agent.Decision{}, false
	}
	if d.CardIndex == nil && d.Hypothesis == "" {
		return agent.Decision{}, false
	}
	return d, true
}

func withIndex(d agent.Decision, idx int) agent.Decision {
	d.CardIndex = &idx
	return d
}
