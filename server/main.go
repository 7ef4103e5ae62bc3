package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"eleusis-bench/server/agent"
	"eleusis-bench/server/config"
	"eleusis-bench/server/engine"
	"eleusis-bench/server/llm"
	"eleusis-bench/server/script"
	"eleusis-bench/server/session"
	"eleusis-bench/server/store"
)

func main() {
	cfg := config.FromEnv()

	players := flag.Int("players", cfg.Players, "number of players")
	delay := flag.Duration("delay", cfg.TurnDelay, "pause between turns")
	migrate := flag.Bool("migrate", false, "apply the database schema and exit")
	serve := flag.Bool("serve", false, "serve stored sessions over HTTP")
	showRule := flag.Bool("show-rule", false, "print the hidden rule at the start of each round")
	flag.Parse()
	cfg.Players = *players
	cfg.TurnDelay = *delay

	log := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, cfg, *migrate, *serve, *showRule, log)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

// run dispatches on the mode flags. Every resource it opens is closed
// before it returns.
func run(ctx context.Context, cfg config.Config, migrate, serve, showRule bool, log zerolog.Logger) error {
	rules, err := buildRules(cfg)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	switch {
	case migrate:
		db, err := openDB(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("migrated")
		return nil
	case serve:
		db, err := openDB(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())
		if err := runServer(ctx, cfg, db, rules, log); err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	default:
		if err := runSession(ctx, cfg, rules, showRule, log); err != nil {
			return fmt.Errorf("session failed: %w", err)
		}
		return nil
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	out := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.NoColor, TimeFormat: time.TimeOnly}
	return zerolog.New(out).With().Timestamp().Logger()
}

// buildRules is the classic catalogue plus any Lua rule scripts.
func buildRules(cfg config.Config) (*engine.RuleSet, error) {
	var extra []engine.Rule
	for _, path := range cfg.RuleScripts {
		r, err := script.LoadRule(path)
		if err != nil {
			return nil, err
		}
		extra = append(extra, r)
	}
	return engine.NewRuleSet(rand.New(rand.NewSource(cfg.DeckSeed)), extra...), nil
}

func openDB(ctx context.Context, cfg config.Config, log zerolog.Logger) (*store.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("Missing required env var DATABASE_URL. Put it in .env (dev) or set it on the host (prod).")
	}
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close(context.Background())
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("migrated")
	}
	return db, nil
}

func runServer(ctx context.Context, cfg config.Config, db *store.DB, rules *engine.RuleSet, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      Router(db, rules, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info().Str("port", cfg.Port).Msg("listening (Ctrl+C to stop)")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runSession(ctx context.Context, cfg config.Config, rules *engine.RuleSet, showRule bool, log zerolog.Logger) error {
	names := make([]string, cfg.Players)
	for i := range names {
		names[i] = fmt.Sprintf("Player_%d", i+1)
	}
	seats, closeSeats, err := buildSeats(cfg, names, log)
	if err != nil {
		return err
	}
	defer closeSeats()

	judge := buildJudge(cfg, log)
	l, err := session.New(session.Config{
		Rounds:                 cfg.Rounds,
		HandSize:               cfg.HandSize,
		DeckCopies:             cfg.DeckCopies,
		MaxTurns:               cfg.MaxTurns,
		Delay:                  cfg.TurnDelay,
		DecisionTimeout:        cfg.DecisionTimeout,
		Retries:                cfg.DecisionRetries,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		Seed:                   cfg.DeckSeed,
		Rule:                   cfg.Rule,
	}, seats, judge, rules, log)
	if err != nil {
		return err
	}

	fl := session.NewFileLog(cfg.LogDir, l.ID, l.Started)
	defer fl.Close()
	l.AddSink(fl)

	var db *store.DB
	if cfg.DatabaseURL != "" {
		db, err = openSessionDB(ctx, cfg, l, names)
		if err != nil {
			log.Warn().Err(err).Msg("DB disabled")
			db = nil
		} else {
			defer db.Close(context.Background())
			l.AddSink(db)
		}
	}

	con := newConsole(cfg.NoColor, showRule)
	con.banner(l.ID, names, cfg.Policy)
	l.OnRoundStart = con.roundStart
	l.OnRecord = con.record

	scores, runErr := l.Run(ctx)
	if db != nil {
		if err := db.FinishSession(context.Background(), l.ID, scores, runErr); err != nil {
			log.Warn().Err(err).Msg("finish session")
		}
	}
	con.final(sessionStats(l.Records), fl.Path())
	return runErr
}

func openSessionDB(ctx context.Context, cfg config.Config, l *session.Loop, names []string) (*store.DB, error) {
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close(ctx)
			return nil, err
		}
	}
	meta := store.SessionMeta{ID: l.ID, Players: names, Rounds: cfg.Rounds, DeckSeed: cfg.DeckSeed, Policy: cfg.Policy}
	if err := db.CreateSession(ctx, meta); err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

func buildSeats(cfg config.Config, names []string, log zerolog.Logger) ([]session.Seat, func(), error) {
	seats := make([]session.Seat, len(names))
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	var shared agent.DecisionSource
	if cfg.Policy == "llm" {
		rulesText := ""
		if cfg.RulesFile != "" {
			b, err := os.ReadFile(cfg.RulesFile)
			if err != nil {
				return nil, closeAll, fmt.Errorf("read rules file: %w", err)
			}
			rulesText = string(b)
		}
		shared = llm.NewPlayer(llm.NewClient(cfg.PlayerModel, log.With().Str("role", "player").Logger()), rulesText)
	}
	for i, name := range names {
		var src agent.DecisionSource
		switch cfg.Policy {
		case "llm":
			src = shared
		case "lua":
			p, err := script.LoadPolicy(cfg.LuaPolicy)
			if err != nil {
				closeAll()
				return nil, func() {}, err
			}
			closers = append(closers, p.Close)
			src = p
		default:
			src = agent.NewRandom(rand.New(rand.NewSource(cfg.DeckSeed + int64(i) + 1)))
		}
		seats[i] = session.Seat{Name: name, Source: src}
	}
	return seats, closeAll, nil
}

// buildJudge uses a model when JUDGE_MODEL (or OPENAI_MODEL) is set and falls
// back to exact text matching otherwise.
func buildJudge(cfg config.Config, log zerolog.Logger) agent.HypothesisJudge {
	if cfg.JudgeModel == "" {
		log.Warn().Msg("no JUDGE_MODEL, hypotheses are checked by exact match against the rule text")
		return agent.ExactJudge{}
	}
	return llm.NewJudge(llm.NewClient(cfg.JudgeModel, log.With().Str("role", "judge").Logger()))
}
