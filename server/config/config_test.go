package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ELEUSIS_PLAYERS", "TURN_DELAY", "ROUNDS", "HAND_SIZE", "DECK_COPIES", "MAX_TURNS",
		"DECK_SEED", "RULE", "RULE_SCRIPTS", "POLICY", "LUA_POLICY", "PLAYER_MODEL", "JUDGE_MODEL",
		"OPENAI_MODEL", "DECISION_TIMEOUT", "DECISION_RETRIES", "MAX_CONSECUTIVE_FAILURES",
		"LOG_DIR", "LOG_LEVEL", "DATABASE_URL", "AUTO_MIGRATE", "PORT", "NO_COLOR", "RULES_FILE",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("OPENAI_API_KEY", "set-so-no-secret-lookup")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Players != 1 || c.TurnDelay != 500*time.Millisecond || c.Rounds != 1 || c.HandSize != 7 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.MaxTurns != 200 || c.DecisionTimeout != time.Minute || c.DecisionRetries != 2 || c.MaxConsecutiveFailures != 5 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.Policy != "llm" || c.LogDir != "./logs" || c.Port != "8080" || c.LogLevel != "info" {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ELEUSIS_PLAYERS", "4")
	t.Setenv("TURN_DELAY", "1.5")
	t.Setenv("DECK_SEED", "42")
	t.Setenv("RULE_SCRIPTS", " a.lua, ,b.lua ")
	t.Setenv("POLICY", "LUA")
	t.Setenv("LUA_POLICY", "p.lua")
	t.Setenv("AUTO_MIGRATE", "yes")
	t.Setenv("DECISION_TIMEOUT", "5s")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("JUDGE_MODEL", "gpt-4o")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Players != 4 || c.TurnDelay != 1500*time.Millisecond || c.DeckSeed != 42 {
		t.Fatalf("unexpected values %+v", c)
	}
	if len(c.RuleScripts) != 2 || c.RuleScripts[1] != "b.lua" {
		t.Fatalf("unexpected rule scripts %v", c.RuleScripts)
	}
	if c.Policy != "lua" || !c.AutoMigrate || c.DecisionTimeout != 5*time.Second {
		t.Fatalf("unexpected values %+v", c)
	}
	if c.PlayerModel != "gpt-4o-mini" || c.JudgeModel != "gpt-4o" {
		t.Fatalf("unexpected models %q %q", c.PlayerModel, c.JudgeModel)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Players: 2, Rounds: 1, HandSize: 7, DeckCopies: 1, Policy: "random"}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	bad := []Config{
		{Players: 0, Rounds: 1, HandSize: 7, DeckCopies: 1, Policy: "random"},
		{Players: 8, Rounds: 1, HandSize: 7, DeckCopies: 1, Policy: "random"},
		{Players: 2, Rounds: 1, HandSize: 7, DeckCopies: 1, Policy: "lua"},
		{Players: 2, Rounds: 1, HandSize: 7, DeckCopies: 1, Policy: "human"},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
