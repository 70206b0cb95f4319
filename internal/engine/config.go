package engine

import (
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMTimeout         time.Duration
	LLMJSONAttempts    int // attempts per structured LLM call, including re-prompts

	YouTubeAPIKey           string
	YouTubeAPIKeyFallback   string
	YouTubeRegion           string
	YouTubeSearchMax        int
	YouTubeTimeout          time.Duration
	YouTubeRPS              float64
	YouTubeBatchConcurrency int

	Evaluator     string // "llm" (default) or "score"
	VerifyCeiling bool   // drop evaluator results at or above the subscriber ceiling

	Retry RetryConfig
}

// Defaults for zero-valued Config fields.
const (
	DefaultRegion       = "IN"
	DefaultSearchMax    = 15
	DefaultJSONAttempts = 3
	DiscoveryWindow     = 30 * 24 * time.Hour
)

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.YouTubeRegion == "" {
		c.YouTubeRegion = DefaultRegion
	}
	if c.YouTubeSearchMax <= 0 {
		c.YouTubeSearchMax = DefaultSearchMax
	}
	if c.LLMJSONAttempts <= 0 {
		c.LLMJSONAttempts = DefaultJSONAttempts
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialWait == 0 {
		c.Retry = DefaultRetryConfig
	}
	return c
}
