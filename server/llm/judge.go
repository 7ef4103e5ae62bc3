package llm

import (
	"context"
	"fmt"
	"strings"

	"eleusis-bench/server/agent"
)

const reasonHelp = `Can be:
- CORRECT if the hypothesis matches the rule exactly.
- INCORRECT_MAINLINE_CONTRADICTION if the hypothesis contradicts the mainline of valid plays.
- INCORRECT_HISTORY_CONTRADICTION if the hypothesis contradicts the history of invalid plays.
- INCORRECT if the hypothesis is wrong for any other reason.
For example, given "Cards must alternate between red and black" and two consecutive mainline cards of the same colour, the reason is INCORRECT_MAINLINE_CONTRADICTION.`

// Judge asks a model whether a hypothesis is equivalent to the real rule.
type Judge struct {
	Client *Client
	Opts   PingOptions
}

func NewJudge(c *Client) *Judge {
	return &Judge{Client: c, Opts: EnvPingOptions()}
}

func (j *Judge) Judge(ctx context.Context, h agent.Hypothesis) (agent.Verdict, error) {
	system := "You are the judge of an Eleusis game. You are given a hypothesis and the real rule of the game " +
		"and must decide whether the hypothesis is equivalent, complete and correct."
	var user strings.Builder
	fmt.Fprintf(&user, "The hypothesis is: %s\n", h.Text)
	fmt.Fprintf(&user, "The real rule of the game is: %s\n\n", h.Rule)
	user.WriteString("This is the current state of the game:\n")
	user.WriteString(h.State)
	user.WriteString("\n\nReply with JSON holding is_valid and reason.")

	opts := j.Opts
	opts.StructuredSchemaName = "hypothesis_validation"
	opts.StructuredSchema = verdictSchema()
	opts.StructuredStrict = true

	parsed, raw, err := j.Client.completeJSON(ctx, system, user.String(), opts)
	if err != nil {
		return agent.Verdict{}, err
	}
	valid, ok := parsed["is_valid"].(bool)
	if !ok {
		return agent.Verdict{}, fmt.Errorf("%w: is_valid missing in %s", agent.ErrMalformedVerdict, truncate(raw, 200))
	}
	reason, _ := parsed["reason"].(string)
	return agent.NewVerdict(valid, reason)
}

func verdictSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"is_valid": map[string]any{
				"type":        "boolean",
				"description": "Whether the hypothesis is valid, only in case of CORRECT",
			},
			"reason": map[string]any{
				"type": "string",
				"enum": []string{
					string(agent.ReasonCorrect),
					string(agent.ReasonMainlineContradiction),
					string(agent.ReasonHistoryContradiction),
					string(agent.ReasonIncorrect),
				},
				"description": reasonHelp,
			},
		},
		"required": []string{"is_valid", "reason"},
	}
}
