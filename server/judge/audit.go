package judge

import (
	"context"
	"fmt"

	"eleusis-bench/server/engine"
	"eleusis-bench/server/session"
	"eleusis-bench/server/store"
)

const auditorName = "ReplayJudge"

// Finding is the replay verdict for one recorded play.
type Finding struct {
	Index    int    `json:"index"` // position in the input slice
	Round    int    `json:"round"`
	Turn     int    `json:"turn"`
	Player   string `json:"player"`
	Card     string `json:"card"`
	Expected *bool  `json:"expected_valid"`
	Recorded *bool  `json:"recorded_valid"`
	Agrees   bool   `json:"agrees"`
	Detail   string `json:"detail,omitempty"`
}

type Report struct {
	Plays         int       `json:"plays"`
	Agreements    int       `json:"agreements"`
	Disagreements int       `json:"disagreements"`
	Unchecked     int       `json:"unchecked"`
	Findings      []Finding `json:"findings"`
}

// Audit replays every card play against the rule named in its record and
// compares the fresh verdict with the recorded one. The mainline is rebuilt
// from the records themselves, so a divergence also shows up as a mismatch
// against the recorded mainline snapshot.
func Audit(records []session.Record, rules *engine.RuleSet) Report {
	rep := Report{Findings: []Finding{}}
	var mainline []engine.Card
	round := -1
	for i, r := range records {
		if r.Round != round {
			round = r.Round
			mainline = nil
		}
		if r.Kind != session.KindTurn || r.CardPlayed == "" || r.WasValid == nil {
			continue
		}
		rep.Plays++
		f := Finding{Index: i, Round: r.Round, Turn: r.Turn, Player: r.Player, Card: r.CardPlayed, Recorded: r.WasValid}

		card, err := engine.ParseCard(r.CardPlayed)
		rule, ok := rules.Lookup(r.RuleName)
		switch {
		case err != nil:
			f.Detail = err.Error()
		case !ok:
			f.Detail = fmt.Sprintf("rule %q not available", r.RuleName)
		default:
			candidate := append(append([]engine.Card(nil), mainline...), card)
			want := rule.Allowed(candidate)
			f.Expected = &want
			f.Agrees = want == *r.WasValid
			if !f.Agrees {
				f.Detail = fmt.Sprintf("rule says %v after %v", want, engine.CardsToStr(mainline))
			}
		}

		if *r.WasValid {
			mainline = append(mainline, card)
		}
		if f.Agrees && !sameCards(engine.CardsToStr(mainline), r.State.Mainline) {
			f.Agrees = false
			f.Detail = fmt.Sprintf("mainline %v, recorded %v", engine.CardsToStr(mainline), r.State.Mainline)
		}

		switch {
		case f.Expected == nil:
			rep.Unchecked++
		case f.Agrees:
			rep.Agreements++
		default:
			rep.Disagreements++
		}
		rep.Findings = append(rep.Findings, f)
	}
	return rep
}

// AuditStore is the slice of store.DB the audit needs.
type AuditStore interface {
	SessionRecords(ctx context.Context, id string) ([]store.StoredRecord, error)
	UpsertAudit(ctx context.Context, rows []store.AuditRow) error
}

// EvaluateSession audits a stored session and writes one event_audit row per
// card play.
func EvaluateSession(ctx context.Context, db AuditStore, id string, rules *engine.RuleSet) (Report, error) {
	stored, err := db.SessionRecords(ctx, id)
	if err != nil {
		return Report{}, err
	}
	recs := make([]session.Record, len(stored))
	for i, s := range stored {
		recs[i] = s.Record
	}
	rep := Audit(recs, rules)
	rows := make([]store.AuditRow, 0, len(rep.Findings))
	for _, f := range rep.Findings {
		rows = append(rows, store.AuditRow{
			EventID:       stored[f.Index].ID,
			Auditor:       auditorName,
			ExpectedValid: f.Expected,
			RecordedValid: f.Recorded,
			Agrees:        f.Agrees,
			Detail:        f.Detail,
		})
	}
	if err := db.UpsertAudit(ctx, rows); err != nil {
		return rep, err
	}
	return rep, nil
}

func sameCards(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
