package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"eleusis-bench/server/agent"
	"eleusis-bench/server/engine"
)

const alternateText = "cards must alternate between red and black"

type failingSource struct{ calls int }

func (f *failingSource) Decide(ctx context.Context, obs agent.Observation) (agent.Decision, error) {
	f.calls++
	return agent.Decision{}, errors.New("model unavailable")
}

type garbledSource struct{ calls int }

func (g *garbledSource) Decide(ctx context.Context, obs agent.Observation) (agent.Decision, error) {
	g.calls++
	return agent.Decision{}, fmt.Errorf("%w: card_index \"first\"", agent.ErrMalformedDecision)
}

// stallingSource and stallingJudge wait for their deadline.
type stallingSource struct{ lastErr error }

func (s *stallingSource) Decide(ctx context.Context, obs agent.Observation) (agent.Decision, error) {
	<-ctx.Done()
	s.lastErr = ctx.Err()
	return agent.Decision{}, ctx.Err()
}

type stallingJudge struct{}

func (stallingJudge) Judge(ctx context.Context, h agent.Hypothesis) (agent.Verdict, error) {
	<-ctx.Done()
	return agent.Verdict{}, ctx.Err()
}

func snapshotJSON(t *testing.T, g *engine.Game) []byte {
	t.Helper()
	b, err := json.Marshal(g.Snapshot(true))
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return b
}

type failingSink struct{}

func (failingSink) Append(ctx context.Context, r Record) error { return errors.New("disk full") }

func newLoop(t *testing.T, cfg Config, judge agent.HypothesisJudge, seats []Seat, sinks ...Sink) *Loop {
	t.Helper()
	l, err := New(cfg, seats, judge, engine.NewRuleSet(rand.New(rand.NewSource(1))), zerolog.Nop(), sinks...)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return l
}

func TestCorrectHypothesisEndsRound(t *testing.T) {
	cfg := Config{Rule: "alternate_colors", Seed: 3}
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{
		{Name: "P1", Source: agent.NewScripted(agent.Decision{Hypothesis: alternateText})},
		{Name: "P2", Source: agent.NewScripted()},
	})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(l.Records) != 2 {
		t.Fatalf("expected turn + round_end records, got %d", len(l.Records))
	}
	first := l.Records[0]
	if first.HypothesisValid == nil || !*first.HypothesisValid || first.Result != "CORRECT" {
		t.Fatalf("expected correct hypothesis, got %+v", first)
	}
	if first.Outcome != OutcomeNoPlay || first.CardIndex != nil {
		t.Fatalf("expected no card played, got %+v", first)
	}
	for _, p := range l.Game.Table.Players {
		if len(p.Hand) != 0 {
			t.Fatalf("expected empty hands after termination, %s has %d", p.Name, len(p.Hand))
		}
	}
	if end := l.Records[1]; end.Kind != KindRoundEnd || end.Prophet != "P1" {
		t.Fatalf("unexpected round end record %+v", end)
	}
}

func TestOutOfRangeIndexIsRecordedNotRaised(t *testing.T) {
	cfg := Config{Rule: "alternate_colors", Seed: 3}
	p1 := agent.NewScripted(agent.Play(99))
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{
		{Name: "P1", Source: p1},
		{Name: "P2", Source: agent.NewScripted(agent.Decision{Hypothesis: alternateText})},
	})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	first := l.Records[0]
	if !strings.Contains(first.Error, "out of range") {
		t.Fatalf("expected range error on record, got %q", first.Error)
	}
	if first.Outcome != OutcomeNoPlay || first.CardPlayed != "" {
		t.Fatalf("expected no-op turn, got %+v", first)
	}
	if len(first.State.CurrentPlayerHand) != 7 {
		t.Fatalf("expected untouched hand, got %v", first.State.CurrentPlayerHand)
	}
	if l.Records[1].Player != "P2" {
		t.Fatalf("expected the turn to pass to P2, got %s", l.Records[1].Player)
	}
}

func TestIncorrectHypothesisCostsTwoCards(t *testing.T) {
	judge := &agent.FixedJudge{Verdict: agent.Verdict{Reason: agent.ReasonIncorrect}}
	cfg := Config{Rule: "alternate_colors", Seed: 3, MaxTurns: 1}
	l := newLoop(t, cfg, judge, []Seat{
		{Name: "P1", Source: agent.NewScripted(agent.Decision{Hypothesis: "only hearts"})},
		{Name: "P2", Source: agent.NewScripted()},
	})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec := l.Records[0]
	if judge.Calls != 1 {
		t.Fatalf("expected one judge call, got %d", judge.Calls)
	}
	if rec.PenaltyDealt != 2 || rec.DeckShort {
		t.Fatalf("expected two penalty cards, got %+v", rec)
	}
	if n := len(l.Game.Table.Players[0].Hand); n != 9 {
		t.Fatalf("expected 9 cards in hand, got %d", n)
	}
	if notes := l.notes["P1"]; len(notes) != 1 || notes[0].Result != "INCORRECT" {
		t.Fatalf("expected hypothesis note, got %+v", notes)
	}
}

func TestJudgeErrorCarriesNoPenalty(t *testing.T) {
	judge := &agent.FixedJudge{Err: errors.New("judge offline")}
	cfg := Config{Rule: "alternate_colors", Seed: 3, MaxTurns: 1}
	l := newLoop(t, cfg, judge, []Seat{
		{Name: "P1", Source: agent.NewScripted(agent.Decision{Hypothesis: "anything"})},
	})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec := l.Records[0]
	if !strings.Contains(rec.Error, "judge offline") || rec.HypothesisValid != nil {
		t.Fatalf("expected judge error on record, got %+v", rec)
	}
	if n := len(l.Game.Table.Players[0].Hand); n != 7 {
		t.Fatalf("expected no penalty, hand has %d", n)
	}
}

func TestEmptyHypothesisSkipsJudge(t *testing.T) {
	judge := &agent.FixedJudge{}
	cfg := Config{Rule: "alternate_colors", Seed: 3, MaxTurns: 1}
	l := newLoop(t, cfg, judge, []Seat{
		{Name: "P1", Source: agent.NewScripted(agent.Decision{Hypothesis: "   "})},
	})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if judge.Calls != 0 {
		t.Fatalf("expected no judge call, got %d", judge.Calls)
	}
}

func TestRepeatedFailuresAbortSession(t *testing.T) {
	src := &failingSource{}
	cfg := Config{Seed: 3, Retries: 1, MaxConsecutiveFailures: 3}
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{{Name: "P1", Source: src}})
	_, err := l.Run(context.Background())
	if !errors.Is(err, ErrTooManyFailures) {
		t.Fatalf("expected ErrTooManyFailures, got %v", err)
	}
	if src.calls != 6 {
		t.Fatalf("expected 6 attempts (3 turns x 2), got %d", src.calls)
	}
	if len(l.Records) != 2 {
		t.Fatalf("expected two skipped turns on record, got %d", len(l.Records))
	}
	for _, r := range l.Records {
		if r.Outcome != OutcomeSkipped || r.Error == "" {
			t.Fatalf("expected skipped record with error, got %+v", r)
		}
	}
	if err := l.Game.CheckConservation(); err != nil {
		t.Fatalf("state changed by failed decisions: %v", err)
	}
}

func TestRandomSessionAcrossRoundsWritesLog(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Rounds: 3, MaxTurns: 60, Seed: 11}
	seats := []Seat{
		{Name: "P1", Source: agent.NewRandom(rand.New(rand.NewSource(1)))},
		{Name: "P2", Source: agent.NewRandom(rand.New(rand.NewSource(2)))},
		{Name: "P3", Source: agent.NewRandom(rand.New(rand.NewSource(3)))},
	}
	l, err := New(cfg, seats, agent.ExactJudge{}, engine.NewRuleSet(rand.New(rand.NewSource(5))), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fl := NewFileLog(dir, l.ID, l.Started)
	l.AddSink(fl)
	seen := 0
	l.OnRecord = func(Record) { seen++ }

	scores, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := ReadFileLog(fl.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(got) != len(l.Records) || seen != len(l.Records) {
		t.Fatalf("expected %d records everywhere, file %d callback %d", len(l.Records), len(got), seen)
	}
	var prophets []string
	for _, r := range got {
		if r.Session != l.ID {
			t.Fatalf("record from another session: %s", r.Session)
		}
		if r.Kind == KindRoundEnd {
			prophets = append(prophets, r.Prophet)
		}
	}
	if strings.Join(prophets, ",") != "P1,P2,P3" {
		t.Fatalf("expected rotating prophet, got %v", prophets)
	}
	if len(scores) != 3 {
		t.Fatalf("expected scores for three players, got %v", scores)
	}
}

func TestCancelDuringPacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := Config{Seed: 3, Delay: 1 << 40}
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{
		{Name: "P1", Source: agent.NewRandom(rand.New(rand.NewSource(1)))},
	})
	l.OnRecord = func(Record) { cancel() }
	_, err := l.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(l.Records) != 1 {
		t.Fatalf("expected a single turn before cancellation, got %d", len(l.Records))
	}
}

func TestSinkFailureFailsSession(t *testing.T) {
	cfg := Config{Seed: 3, MaxTurns: 5}
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{
		{Name: "P1", Source: agent.NewRandom(rand.New(rand.NewSource(1)))},
	}, failingSink{})
	_, err := l.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestNewRejectsBadSetup(t *testing.T) {
	rules := engine.NewRuleSet(nil)
	src := agent.NewScripted()
	if _, err := New(Config{}, nil, agent.ExactJudge{}, rules, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for no players")
	}
	dup := []Seat{{Name: "A", Source: src}, {Name: "A", Source: src}}
	if _, err := New(Config{}, dup, agent.ExactJudge{}, rules, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for duplicate names")
	}
	one := []Seat{{Name: "A", Source: src}}
	if _, err := New(Config{Rule: "no_such_rule"}, one, agent.ExactJudge{}, rules, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown rule")
	}
}

func TestMalformedDecisionIsNoPlayNotFailure(t *testing.T) {
	p1, p2 := &garbledSource{}, &garbledSource{}
	cfg := Config{Rule: "alternate_colors", Seed: 3, MaxTurns: 6, Retries: 2, MaxConsecutiveFailures: 2}
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{
		{Name: "P1", Source: p1},
		{Name: "P2", Source: p2},
	})
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("expected session to survive malformed replies, got %v", err)
	}
	if p1.calls != 3 || p2.calls != 3 {
		t.Fatalf("expected one call per turn with no retries, got %d/%d", p1.calls, p2.calls)
	}
	if len(l.Records) != 7 {
		t.Fatalf("expected 6 turns and a round end, got %d records", len(l.Records))
	}
	for i, r := range l.Records[:6] {
		if r.Outcome != OutcomeNoPlay || !strings.Contains(r.Error, "malformed decision") {
			t.Fatalf("record %d: expected no_play with error, got %+v", i, r)
		}
		want := "P1"
		if i%2 == 1 {
			want = "P2"
		}
		if r.Player != want {
			t.Fatalf("record %d: expected %s to act, got %s", i, want, r.Player)
		}
	}
	if l.failRun != 0 {
		t.Fatalf("expected no failure streak, got %d", l.failRun)
	}
	for _, p := range l.Game.Table.Players {
		if len(p.Hand) != 7 {
			t.Fatalf("expected %s to keep 7 cards, got %d", p.Name, len(p.Hand))
		}
	}
}

func TestDecisionTimeoutSkipsWithoutMutation(t *testing.T) {
	src := &stallingSource{}
	cfg := Config{Rule: "alternate_colors", Seed: 3, MaxTurns: 1, DecisionTimeout: 10 * time.Millisecond}
	l := newLoop(t, cfg, agent.ExactJudge{}, []Seat{{Name: "P1", Source: src}})
	var before, after []byte
	l.OnRoundStart = func(int, *engine.Game) { before = snapshotJSON(t, l.Game) }
	l.OnRecord = func(r Record) {
		if r.Kind == KindTurn {
			after = snapshotJSON(t, l.Game)
		}
	}
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !errors.Is(src.lastErr, context.DeadlineExceeded) {
		t.Fatalf("expected the call to hit its deadline, got %v", src.lastErr)
	}
	rec := l.Records[0]
	if rec.Outcome != OutcomeSkipped || !strings.Contains(rec.Error, context.DeadlineExceeded.Error()) {
		t.Fatalf("expected skipped record with deadline error, got %+v", rec)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("state changed by timed out decision:\nbefore %s\nafter  %s", before, after)
	}
}

func TestJudgeTimeoutCarriesNoPenalty(t *testing.T) {
	cfg := Config{Rule: "alternate_colors", Seed: 3, MaxTurns: 1, DecisionTimeout: 10 * time.Millisecond}
	l := newLoop(t, cfg, stallingJudge{}, []Seat{
		{Name: "P1", Source: agent.NewScripted(agent.Decision{Hypothesis: "only hearts"})},
	})
	var before, after []byte
	l.OnRoundStart = func(int, *engine.Game) { before = snapshotJSON(t, l.Game) }
	l.OnRecord = func(r Record) {
		if r.Kind == KindTurn {
			after = snapshotJSON(t, l.Game)
		}
	}
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec := l.Records[0]
	if rec.HypothesisValid != nil || !strings.Contains(rec.Error, "judge: "+context.DeadlineExceeded.Error()) {
		t.Fatalf("expected judge deadline on record, got %+v", rec)
	}
	if rec.PenaltyDealt != 0 {
		t.Fatalf("expected no penalty, got %d", rec.PenaltyDealt)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("state changed by timed out judge:\nbefore %s\nafter  %s", before, after)
	}
}
