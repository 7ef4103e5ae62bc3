package judge

import (
	"context"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"eleusis-bench/server/agent"
	"eleusis-bench/server/engine"
	"eleusis-bench/server/session"
	"eleusis-bench/server/store"
)

func playedSession(t *testing.T, rule string) []session.Record {
	t.Helper()
	seats := []session.Seat{
		{Name: "P1", Source: agent.NewRandom(rand.New(rand.NewSource(4)))},
		{Name: "P2", Source: agent.NewRandom(rand.New(rand.NewSource(9)))},
	}
	cfg := session.Config{Rounds: 2, MaxTurns: 40, Seed: 21, Rule: rule}
	l, err := session.New(cfg, seats, agent.ExactJudge{}, engine.NewRuleSet(nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := l.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return l.Records
}

func TestAuditAgreesWithRecordedSession(t *testing.T) {
	for _, rule := range []string{"alternate_colors", "sum_under_15", "higher_after_hearts"} {
		recs := playedSession(t, rule)
		rep := Audit(recs, engine.NewRuleSet(nil))
		if rep.Plays == 0 {
			t.Fatalf("%s: expected plays to audit", rule)
		}
		if rep.Disagreements != 0 || rep.Unchecked != 0 || rep.Agreements != rep.Plays {
			t.Fatalf("%s: expected full agreement, got %+v", rule, rep)
		}
	}
}

func TestAuditFlagsTamperedVerdict(t *testing.T) {
	recs := playedSession(t, "alternate_colors")
	idx := -1
	for i, r := range recs {
		if r.WasValid != nil && !*r.WasValid {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.Skip("session had no rejected play")
	}
	flipped := true
	recs[idx].WasValid = &flipped
	rep := Audit(recs, engine.NewRuleSet(nil))
	if rep.Disagreements == 0 {
		t.Fatalf("expected a disagreement after tampering")
	}
	for _, f := range rep.Findings {
		if f.Index == idx {
			if f.Agrees || f.Expected == nil || *f.Expected {
				t.Fatalf("expected tampered play to be flagged, got %+v", f)
			}
			return
		}
	}
	t.Fatalf("no finding for tampered record %d", idx)
}

func TestAuditUnknownRuleIsUnchecked(t *testing.T) {
	valid := true
	recs := []session.Record{{
		Kind: session.KindTurn, Round: 1, RuleName: "scripted_only", CardPlayed: "7♥", WasValid: &valid,
		State: session.State{Mainline: []string{"7♥"}},
	}}
	rep := Audit(recs, engine.NewRuleSet(nil))
	if rep.Plays != 1 || rep.Unchecked != 1 || rep.Findings[0].Detail == "" {
		t.Fatalf("expected one unchecked play, got %+v", rep)
	}
}

type memStore struct {
	recs []store.StoredRecord
	rows []store.AuditRow
}

func (m *memStore) SessionRecords(ctx context.Context, id string) ([]store.StoredRecord, error) {
	return m.recs, nil
}

func (m *memStore) UpsertAudit(ctx context.Context, rows []store.AuditRow) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func TestEvaluateSessionWritesRowPerPlay(t *testing.T) {
	recs := playedSession(t, "same_suit_or_rank")
	m := &memStore{}
	for i, r := range recs {
		m.recs = append(m.recs, store.StoredRecord{ID: int64(100 + i), Seq: i, Record: r})
	}
	rep, err := EvaluateSession(context.Background(), m, "s", engine.NewRuleSet(nil))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(m.rows) != rep.Plays || rep.Plays == 0 {
		t.Fatalf("expected %d audit rows, got %d", rep.Plays, len(m.rows))
	}
	for _, row := range m.rows {
		if row.Auditor != auditorName || !row.Agrees || row.EventID < 100 {
			t.Fatalf("unexpected audit row %+v", row)
		}
		if rec := m.recs[row.EventID-100].Record; rec.CardPlayed == "" {
			t.Fatalf("audit row points at a non-play record")
		}
	}
}
