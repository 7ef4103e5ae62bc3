package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eleusis-bench/server/session"
)

//go:embed schema.sql
var schema embed.FS

var ErrNotFound = errors.New("not found")

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Sessions
------------------------------*/

type SessionMeta struct {
	ID       string
	Players  []string
	Rounds   int
	DeckSeed int64
	Policy   string
}

type SessionSummary struct {
	ID          string         `json:"id"`
	Players     []string       `json:"players"`
	Rounds      int            `json:"rounds"`
	Policy      string         `json:"policy"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at,omitempty"`
	FinalScores map[string]int `json:"final_scores,omitempty"`
	Error       string         `json:"error,omitempty"`
	Events      int            `json:"events"`
}

func (db *DB) CreateSession(ctx context.Context, m SessionMeta) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions(id, players, rounds, deck_seed, policy)
		VALUES ($1,$2,$3,$4,$5)
	`, m.ID, m.Players, m.Rounds, m.DeckSeed, m.Policy)
	return err
}

// FinishSession stamps the end time, final scores and, when the run failed,
// the error that stopped it.
func (db *DB) FinishSession(ctx context.Context, id string, scores map[string]int, runErr error) error {
	var scoresJSON any
	if scores != nil {
		b, err := json.Marshal(scores)
		if err != nil {
			return err
		}
		scoresJSON = b
	}
	var errText any
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := db.Exec(ctx, `
		UPDATE sessions
		   SET ended_at = now(), final_scores = $2, error = $3
		 WHERE id = $1
	`, id, scoresJSON, errText)
	return err
}

func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT s.id::text, s.players, s.rounds, s.policy, s.started_at, s.ended_at,
		       s.final_scores, COALESCE(s.error, ''),
		       (SELECT COUNT(*) FROM turn_events e WHERE e.session_id = s.id)::int
		  FROM sessions s
		 ORDER BY s.started_at DESC
		 LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SessionSummary{}
	for rows.Next() {
		var s SessionSummary
		var scores []byte
		if err := rows.Scan(&s.ID, &s.Players, &s.Rounds, &s.Policy, &s.StartedAt, &s.EndedAt, &scores, &s.Error, &s.Events); err != nil {
			return nil, err
		}
		if len(scores) > 0 {
			if err := json.Unmarshal(scores, &s.FinalScores); err != nil {
				return nil, fmt.Errorf("session %s scores: %w", s.ID, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

/* -----------------------------
   Turn events
------------------------------*/

// Append stores one record. DB satisfies session.Sink.
func (db *DB) Append(ctx context.Context, r session.Record) error {
	return db.AppendRecord(ctx, r)
}

func (db *DB) AppendRecord(ctx context.Context, r session.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO turn_events(
			session_id, seq, round, turn, kind, player, rule_name,
			card_played, outcome, was_valid, hypothesis, hypothesis_valid,
			result, error, record
		) VALUES (
			$1, (SELECT COUNT(*) FROM turn_events WHERE session_id = $1), $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)
	`,
		r.Session, r.Round, r.Turn, string(r.Kind), nullableString(r.Player), r.RuleName,
		nullableString(r.CardPlayed), nullableString(r.Outcome), nullableBool(r.WasValid),
		nullableString(r.Hypothesis), nullableBool(r.HypothesisValid),
		r.Result, nullableString(r.Error), raw,
	)
	return err
}

// StoredRecord is a record plus its row id, used to key audit rows.
type StoredRecord struct {
	ID     int64
	Seq    int
	Record session.Record
}

func (db *DB) SessionRecords(ctx context.Context, id string) ([]StoredRecord, error) {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	rows, err := db.Query(ctx, `
		SELECT id, seq, record
		  FROM turn_events
		 WHERE session_id = $1
		 ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StoredRecord{}
	for rows.Next() {
		var sr StoredRecord
		var raw []byte
		if err := rows.Scan(&sr.ID, &sr.Seq, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &sr.Record); err != nil {
			return nil, fmt.Errorf("event %d: %w", sr.ID, err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

/* -----------------------------
   Audit
------------------------------*/

type AuditRow struct {
	EventID       int64
	Auditor       string
	ExpectedValid *bool
	RecordedValid *bool
	Agrees        bool
	Detail        string
}

// UpsertAudit writes every row in one transaction, replacing earlier verdicts.
func (db *DB) UpsertAudit(ctx context.Context, rows []AuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	for _, r := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_audit(event_id, auditor, expected_valid, recorded_valid, agrees, detail)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (event_id) DO UPDATE SET
				auditor = EXCLUDED.auditor,
				expected_valid = EXCLUDED.expected_valid,
				recorded_valid = EXCLUDED.recorded_valid,
				agrees = EXCLUDED.agrees,
				detail = EXCLUDED.detail,
				checked_at = now()
		`, r.EventID, r.Auditor, nullableBool(r.ExpectedValid), nullableBool(r.RecordedValid), r.Agrees, r.Detail); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func nullableString(s string) any {
	if v := strings.TrimSpace(s); v != "" {
		return v
	}
	return nil
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
