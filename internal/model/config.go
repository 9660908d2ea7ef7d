package model

import "time"

// Config is the full runtime configuration.
// Hierarchy: CLI flags > ASHVATTHA_* env > config file > defaults.
type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Agent    AgentConfig    `yaml:"agent" mapstructure:"agent"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Policy   PolicyConfig   `yaml:"policy" mapstructure:"policy"`
}

// DatabaseConfig selects and tunes the graph store backend
type DatabaseConfig struct {
	// URL is a postgres connection string. Empty selects the in-memory
	// store (demo/standalone mode; state is lost on exit).
	URL      string `yaml:"url" mapstructure:"url"`
	MaxConns int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// HTTPConfig configures the read API server
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// AgentConfig tunes the worker loops
type AgentConfig struct {
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// StaleAfter: a processing item older than this is treated as
	// abandoned and becomes claimable again.
	StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
}

// SourceConfig configures the fact source clients
type SourceConfig struct {
	// Providers lists enabled fact sources in consultation order:
	// wikidata, wikipedia, llm.
	Providers   []string      `yaml:"providers" mapstructure:"providers"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBytes    int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	InsecureTLS bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	// RequestsPerSecond and Burst feed the per-host rate limiter.
	// PoliteDelay is an extra pause after every external call.
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	PoliteDelay       time.Duration `yaml:"polite_delay" mapstructure:"polite_delay"`
	CacheTTL          time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`

	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`
}

// LLMConfig configures the optional LLM fact extractor.
// Any OpenAI-compatible endpoint works (set base_url for Ollama etc.).
type LLMConfig struct {
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PolicyConfig holds the tunable resolution constants. The exact values
// are policy, not invariants; defaults are documented in DESIGN.md.
type PolicyConfig struct {
	// AutoMergeThreshold: confidence at or above which a genesis root is
	// dissolved into the main graph.
	AutoMergeThreshold float64 `yaml:"auto_merge_threshold" mapstructure:"auto_merge_threshold"`
	// CorroborationBonus: points added to an unverified relationship when
	// an independent source corroborates it, capped at 100.
	CorroborationBonus float64 `yaml:"corroboration_bonus" mapstructure:"corroboration_bonus"`
	// EraWindowYears: birth-year window for fuzzy name dedup.
	EraWindowYears int `yaml:"era_window_years" mapstructure:"era_window_years"`
	// MaxAttempts: terminal failure after this many queue attempts.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// PriorityDecay/MinPriority: re-queue priority reduction on failure.
	PriorityDecay int `yaml:"priority_decay" mapstructure:"priority_decay"`
	MinPriority   int `yaml:"min_priority" mapstructure:"min_priority"`
	// SeedPriority: priority given to manually added persons.
	SeedPriority int `yaml:"seed_priority" mapstructure:"seed_priority"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:      "",
			MaxConns: 10,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Agent: AgentConfig{
			Workers:      2,
			PollInterval: 5 * time.Second,
			StaleAfter:   15 * time.Minute,
		},
		Source: SourceConfig{
			Providers:         []string{"wikidata", "wikipedia"},
			UserAgent:         "Ashvattha/0.3 (+https://github.com/ashvattha/ashvattha)",
			Timeout:           30 * time.Second,
			MaxBytes:          2_000_000,
			RequestsPerSecond: 1,
			Burst:             2,
			PoliteDelay:       500 * time.Millisecond,
			CacheTTL:          24 * time.Hour,
			RespectRobots:     true,
			LLM: LLMConfig{
				Model:     "gpt-4o-mini",
				MaxTokens: 1000,
			},
		},
		Policy: PolicyConfig{
			AutoMergeThreshold: 95,
			CorroborationBonus: 7,
			EraWindowYears:     50,
			MaxAttempts:        3,
			PriorityDecay:      10,
			MinPriority:        5,
			SeedPriority:       100,
		},
	}
}
