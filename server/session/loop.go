package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eleusis-bench/server/agent"
	"eleusis-bench/server/engine"
)

var ErrTooManyFailures = errors.New("too many consecutive collaborator failures")

const hypothesisPenalty = 2

type Config struct {
	Rounds                 int
	HandSize               int
	DeckCopies             int
	MaxTurns               int
	Delay                  time.Duration
	DecisionTimeout        time.Duration
	Retries                int
	MaxConsecutiveFailures int
	Seed                   int64
	Rule                   string // fixed rule name; empty draws at random
}

func (c *Config) defaults() {
	if c.Rounds <= 0 {
		c.Rounds = 1
	}
	if c.HandSize <= 0 {
		c.HandSize = 7
	}
	if c.DeckCopies <= 0 {
		c.DeckCopies = 1
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 200
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = 60 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Seat binds a player name to whatever decides for it.
type Seat struct {
	Name   string
	Source agent.DecisionSource
}

// Loop drives rounds to completion. It is the only writer of the game state.
type Loop struct {
	ID      string
	Started time.Time
	Game    *engine.Game
	Records []Record

	// OnRecord, when set, sees every record after it is persisted.
	OnRecord func(Record)
	// OnRoundStart, when set, runs after each round is dealt.
	OnRoundStart func(round int, g *engine.Game)

	cfg     Config
	seats   map[string]agent.DecisionSource
	judge   agent.HypothesisJudge
	rules   *engine.RuleSet
	sinks   []Sink
	log     zerolog.Logger
	rng     *rand.Rand
	notes   map[string][]agent.Note
	turnNo  int
	failRun int
}

func New(cfg Config, seats []Seat, judge agent.HypothesisJudge, rules *engine.RuleSet, log zerolog.Logger, sinks ...Sink) (*Loop, error) {
	if len(seats) == 0 {
		return nil, errors.New("no players")
	}
	if judge == nil {
		return nil, errors.New("no hypothesis judge")
	}
	cfg.defaults()
	if cfg.Rule != "" {
		if _, ok := rules.Lookup(cfg.Rule); !ok {
			return nil, fmt.Errorf("unknown rule %q", cfg.Rule)
		}
	}
	names := make([]string, len(seats))
	sources := make(map[string]agent.DecisionSource, len(seats))
	for i, s := range seats {
		if _, dup := sources[s.Name]; dup {
			return nil, fmt.Errorf("duplicate player name %q", s.Name)
		}
		names[i] = s.Name
		sources[s.Name] = s.Source
	}
	id := uuid.NewString()
	return &Loop{
		ID:      id,
		Started: time.Now(),
		Game:    engine.NewGame(names...),
		cfg:     cfg,
		seats:   sources,
		judge:   judge,
		rules:   rules,
		sinks:   sinks,
		log:     log.With().Str("session", id).Logger(),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		notes:   map[string][]agent.Note{},
	}, nil
}

// AddSink registers another destination for records. Call it before Run.
func (l *Loop) AddSink(s Sink) { l.sinks = append(l.sinks, s) }

// Run plays every configured round. Scores accumulate across rounds.
func (l *Loop) Run(ctx context.Context) (map[string]int, error) {
	for round := 1; round <= l.cfg.Rounds; round++ {
		if err := l.setupRound(round); err != nil {
			return nil, err
		}
		if l.OnRoundStart != nil {
			l.OnRoundStart(round, l.Game)
		}
		if err := l.playRound(ctx, round); err != nil {
			return l.Game.Snapshot(false).Scores, err
		}
		delta := l.Game.ScoreRound()
		rec := l.baseRecord(round, nil)
		rec.Kind = KindRoundEnd
		rec.ScoreDelta = delta
		rec.Result = "round_scored"
		rec.State = l.state(nil)
		if err := l.emit(ctx, rec); err != nil {
			return nil, err
		}
		l.log.Info().Int("round", round).Interface("delta", delta).Msg("round scored")
	}
	return l.Game.Snapshot(false).Scores, nil
}

func (l *Loop) setupRound(round int) error {
	g := l.Game
	rule := l.rules.Random()
	if l.cfg.Rule != "" {
		rule, _ = l.rules.Lookup(l.cfg.Rule)
	}
	deck := engine.NewDeck(l.cfg.DeckCopies)
	deck.Shuffle(l.rng)
	prophet := (round - 1) % len(g.Table.Players)
	if err := g.SetupRound(prophet, rule, deck, l.cfg.HandSize); err != nil {
		return err
	}
	l.turnNo = 0
	l.log.Info().Int("round", round).Str("rule", rule.Name).Str("prophet", g.Prophet.Name).Msg("round set up")
	return nil
}

func (l *Loop) playRound(ctx context.Context, round int) error {
	g := l.Game
	for !g.IsOver() {
		if l.turnNo >= l.cfg.MaxTurns {
			l.log.Warn().Int("round", round).Int("turns", l.turnNo).Msg("turn limit reached")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := l.turn(ctx, round, g.Current())
		if err != nil {
			return err
		}
		if err := g.CheckConservation(); err != nil {
			return fmt.Errorf("round %d turn %d: %w", round, rec.Turn, err)
		}
		if err := l.emit(ctx, rec); err != nil {
			return err
		}
		l.turnNo++
		if !g.IsOver() {
			if err := l.pace(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// turn runs one decision for p. Errors returned here end the session; every
// recoverable problem is attached to the record instead.
func (l *Loop) turn(ctx context.Context, round int, p *engine.Player) (Record, error) {
	g := l.Game
	rec := l.baseRecord(round, p)
	obs := agent.BuildObservation(g, p, round, l.notes[p.Name])

	dec, err := l.decide(ctx, p.Name, obs)
	if errors.Is(err, agent.ErrMalformedDecision) {
		l.log.Warn().Err(err).Str("player", p.Name).Msg("malformed decision")
		g.Table.NextTurn()
		rec.Outcome, rec.Result, rec.Error = OutcomeNoPlay, OutcomeNoPlay, err.Error()
		rec.State = l.state(p)
		return rec, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return rec, ctx.Err()
		}
		l.failRun++
		if l.failRun >= l.cfg.MaxConsecutiveFailures {
			return rec, fmt.Errorf("%w: %v", ErrTooManyFailures, err)
		}
		g.Table.NextTurn()
		rec.Outcome, rec.Result, rec.Error = OutcomeSkipped, OutcomeSkipped, err.Error()
		rec.State = l.state(p)
		return rec, nil
	}
	l.failRun = 0

	if err := agent.Validate(obs, dec); err != nil {
		rec.Error = err.Error()
		dec.CardIndex = nil
	}

	played := false
	if dec.CardIndex != nil {
		card := p.Hand[*dec.CardIndex]
		rec.CardIndex = dec.CardIndex
		rec.CardPlayed = card.String()
		out, err := g.AttemptPlay(p, card)
		if err != nil {
			rec.Error = joinErr(rec.Error, err.Error())
		} else {
			played = true
			rec.Outcome = string(out)
			// The play event is the last one recorded, even when it ended the round.
			ev := g.History[len(g.History)-1]
			rec.WasValid = boolPtr(ev.Valid)
			if !ev.Valid {
				rec.PenaltyDealt = ev.Dealt
				rec.DeckShort = ev.Dealt < 2
			}
		}
	}
	rec.Result = rec.Outcome

	if hyp := strings.TrimSpace(dec.Hypothesis); hyp != "" {
		rec.Hypothesis = hyp
		if !g.IsOver() {
			l.judgeHypothesis(ctx, p, hyp, &rec)
		}
	}

	if !played {
		if rec.Outcome == "" {
			rec.Outcome = OutcomeNoPlay
		}
		if rec.Result == "" {
			rec.Result = rec.Outcome
		}
		if !g.IsOver() {
			g.Table.NextTurn()
		}
	}
	rec.State = l.state(p)
	return rec, nil
}

func (l *Loop) judgeHypothesis(ctx context.Context, p *engine.Player, hyp string, rec *Record) {
	g := l.Game
	jctx, cancel := context.WithTimeout(ctx, l.cfg.DecisionTimeout)
	defer cancel()
	v, err := l.judge.Judge(jctx, agent.Hypothesis{Text: hyp, Rule: g.Rule.Description, State: g.DescribeState()})
	if err != nil {
		l.log.Warn().Err(err).Str("player", p.Name).Msg("hypothesis judge failed")
		rec.Error = joinErr(rec.Error, "judge: "+err.Error())
		return
	}
	rec.HypothesisValid = boolPtr(v.Valid)
	rec.HypothesisReason = string(v.Reason)
	rec.Result = string(v.Reason)
	l.notes[p.Name] = append(l.notes[p.Name], agent.Note{Hypothesis: hyp, Result: string(v.Reason)})
	if v.Valid {
		g.Terminate()
		l.log.Info().Str("player", p.Name).Str("hypothesis", hyp).Msg("rule found")
		return
	}
	dealt := g.PenaltyDraw(p, hypothesisPenalty)
	rec.PenaltyDealt += dealt
	if dealt < hypothesisPenalty {
		rec.DeckShort = true
	}
}

// decide asks the seat's source, retrying on failure. Each attempt has its own
// timeout and nothing is mutated until an answer arrives. A malformed answer
// is returned at once.
func (l *Loop) decide(ctx context.Context, player string, obs agent.Observation) (agent.Decision, error) {
	src := l.seats[player]
	var lastErr error
	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, l.cfg.DecisionTimeout)
		d, err := src.Decide(dctx, obs)
		cancel()
		if err == nil || errors.Is(err, agent.ErrMalformedDecision) {
			return d, err
		}
		lastErr = err
		if ctx.Err() != nil {
			return agent.Decision{}, ctx.Err()
		}
		l.log.Warn().Err(err).Str("player", player).Int("attempt", attempt+1).Msg("decision failed")
	}
	return agent.Decision{}, lastErr
}

// pace waits between turns. Cancelling the context cuts the wait short.
func (l *Loop) pace(ctx context.Context) error {
	if l.cfg.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(l.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Loop) emit(ctx context.Context, r Record) error {
	for _, s := range l.sinks {
		if err := s.Append(ctx, r); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
	}
	l.Records = append(l.Records, r)
	if l.OnRecord != nil {
		l.OnRecord(r)
	}
	return nil
}

func (l *Loop) baseRecord(round int, p *engine.Player) Record {
	g := l.Game
	r := Record{
		Session:   l.ID,
		Round:     round,
		Turn:      l.turnNo,
		Kind:      KindTurn,
		Timestamp: time.Now().UTC(),
		RuleName:  g.Rule.Name,
		Rule:      g.Rule.Description,
	}
	if p != nil {
		r.Player = p.Name
	}
	if g.Prophet != nil {
		r.Prophet = g.Prophet.Name
	}
	return r
}

func (l *Loop) state(p *engine.Player) State {
	snap := l.Game.Snapshot(false)
	s := State{Mainline: snap.Mainline, Scores: snap.Scores, DeckLeft: snap.DeckLeft}
	if p != nil {
		s.CurrentPlayerHand = engine.CardsToStr(p.Hand)
	}
	return s
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
