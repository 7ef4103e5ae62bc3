package config

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Players     int
	TurnDelay   time.Duration
	Rounds      int
	HandSize    int
	DeckCopies  int
	MaxTurns    int
	DeckSeed    int64
	Rule        string
	RuleScripts []string

	Policy      string // llm, lua or random
	LuaPolicy   string
	PlayerModel string
	JudgeModel  string
	RulesFile   string

	DecisionTimeout        time.Duration
	DecisionRetries        int
	MaxConsecutiveFailures int

	LogDir      string
	LogLevel    string
	DatabaseURL string
	AutoMigrate bool
	Port        string
	NoColor     bool
}

// Load is FromEnv followed by Validate.
func Load() (Config, error) {
	c := FromEnv()
	return c, c.Validate()
}

// FromEnv reads .env (if present) and then the process environment. Values
// that fail to parse fall back to their defaults.
func FromEnv() Config {
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	return Config{
		Players:                atoiDef(os.Getenv("ELEUSIS_PLAYERS"), 1),
		TurnDelay:              durationDef(os.Getenv("TURN_DELAY"), 500*time.Millisecond),
		Rounds:                 atoiDef(os.Getenv("ROUNDS"), 1),
		HandSize:               atoiDef(os.Getenv("HAND_SIZE"), 7),
		DeckCopies:             atoiDef(os.Getenv("DECK_COPIES"), 1),
		MaxTurns:               atoiDef(os.Getenv("MAX_TURNS"), 200),
		DeckSeed:               deckSeedFromEnvOrCrypto(),
		Rule:                   strings.TrimSpace(os.Getenv("RULE")),
		RuleScripts:            splitList(os.Getenv("RULE_SCRIPTS")),
		Policy:                 strings.ToLower(getenv("POLICY", "llm")),
		LuaPolicy:              strings.TrimSpace(os.Getenv("LUA_POLICY")),
		PlayerModel:            getenv("PLAYER_MODEL", os.Getenv("OPENAI_MODEL")),
		JudgeModel:             getenv("JUDGE_MODEL", os.Getenv("OPENAI_MODEL")),
		RulesFile:              strings.TrimSpace(os.Getenv("RULES_FILE")),
		DecisionTimeout:        durationDef(os.Getenv("DECISION_TIMEOUT"), 60*time.Second),
		DecisionRetries:        atoiDef(os.Getenv("DECISION_RETRIES"), 2),
		MaxConsecutiveFailures: atoiDef(os.Getenv("MAX_CONSECUTIVE_FAILURES"), 5),
		LogDir:                 getenv("LOG_DIR", "./logs"),
		LogLevel:               strings.ToLower(getenv("LOG_LEVEL", "info")),
		DatabaseURL:            strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AutoMigrate:            asBool(os.Getenv("AUTO_MIGRATE")),
		Port:                   getenv("PORT", "8080"),
		NoColor:                os.Getenv("NO_COLOR") != "",
	}
}

func (c Config) Validate() error {
	switch {
	case c.Players < 1:
		return fmt.Errorf("ELEUSIS_PLAYERS must be at least 1, got %d", c.Players)
	case c.Rounds < 1:
		return fmt.Errorf("ROUNDS must be at least 1, got %d", c.Rounds)
	case c.HandSize < 1:
		return fmt.Errorf("HAND_SIZE must be at least 1, got %d", c.HandSize)
	case c.DeckCopies < 1:
		return fmt.Errorf("DECK_COPIES must be at least 1, got %d", c.DeckCopies)
	case c.Players*c.HandSize > 52*c.DeckCopies:
		return fmt.Errorf("%d players x %d cards exceeds %d deck(s)", c.Players, c.HandSize, c.DeckCopies)
	case c.TurnDelay < 0:
		return fmt.Errorf("TURN_DELAY must not be negative")
	}
	switch c.Policy {
	case "llm", "random":
	case "lua":
		if c.LuaPolicy == "" {
			return fmt.Errorf("POLICY=lua needs LUA_POLICY")
		}
	default:
		return fmt.Errorf("unknown POLICY %q (llm, lua or random)", c.Policy)
	}
	return nil
}

// Tries: OPENAI_API_KEY_FILE, ./secrets/openai_api_key.txt, ./openai_api_key.txt
// and /run/secrets/openai_api_key.
func loadAPIKeyFromSecret() {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := os.Getenv("OPENAI_API_KEY_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/openai_api_key.txt",
		"./openai_api_key.txt",
		"/run/secrets/openai_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			if key := strings.TrimSpace(string(b)); key != "" {
				os.Setenv("OPENAI_API_KEY", key)
				return
			}
		}
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// durationDef accepts Go durations ("750ms") or plain seconds ("2", "0.5").
func durationDef(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func secureBaseSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return int64(binary.LittleEndian.Uint64(b[:]) ^ uint64(time.Now().UnixNano()))
	}
	return time.Now().UnixNano()
}

func deckSeedFromEnvOrCrypto() int64 {
	if s := strings.TrimSpace(os.Getenv("DECK_SEED")); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	}
	return secureBaseSeed()
}
