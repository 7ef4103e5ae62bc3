package agent

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"
)

var ErrScriptExhausted = errors.New("scripted decisions exhausted")

// Play is a convenience for building decisions in scripts and tests.
func Play(idx int) Decision { return Decision{CardIndex: &idx} }

// Scripted replays a fixed list of decisions, then fails.
type Scripted struct {
	mu        sync.Mutex
	decisions []Decision
	Seen      []Observation
}

func NewScripted(ds ...Decision) *Scripted { return &Scripted{decisions: ds} }

func (s *Scripted) Decide(ctx context.Context, obs Observation) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Seen = append(s.Seen, obs)
	if len(s.decisions) == 0 {
		return Decision{}, ErrScriptExhausted
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

// Random plays a uniformly chosen card and never guesses.
type Random struct {
	rng *rand.Rand
}

func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Random{rng: rng}
}

func (r *Random) Decide(ctx context.Context, obs Observation) (Decision, error) {
	if len(obs.Hand) == 0 {
		return Decision{}, nil
	}
	return Play(r.rng.Intn(len(obs.Hand))), nil
}

// FixedJudge returns the same verdict every time.
type FixedJudge struct {
	Verdict Verdict
	Err     error
	Calls   int
}

func (f *FixedJudge) Judge(ctx context.Context, h Hypothesis) (Verdict, error) {
	f.Calls++
	return f.Verdict, f.Err
}

// ExactJudge accepts a hypothesis only when it matches the rule text after
// dropping case, punctuation and extra spaces.
type ExactJudge struct{}

func (ExactJudge) Judge(ctx context.Context, h Hypothesis) (Verdict, error) {
	if normalize(h.Text) == normalize(h.Rule) {
		return Verdict{Valid: true, Reason: ReasonCorrect}, nil
	}
	return Verdict{Reason: ReasonIncorrect}, nil
}

func normalize(s string) string {
	f := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(f, " ")
}
