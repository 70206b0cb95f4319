// go_creator: creator discovery pipeline.
//
// Turns a natural-language request ("find creators in niche X under N subscribers")
// into a ranked list of YouTube channels: LLM intent extraction, YouTube search,
// video and channel enrichment, LLM (or deterministic) evaluation.
//
// Runs once and prints the results, or serves the creator_search MCP tool when
// MCP_PORT is set.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_creator/internal/creatorserver"
	"github.com/anatolykoptev/go_creator/internal/engine"
	"github.com/anatolykoptev/go_creator/internal/engine/sources"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "")
)

const defaultQuery = "Find Indian fashion creators under 500k subs whose shorts are growing fast"

func main() {
	os.Exit(run())
}

func run() int {
	initLogger(env.Str("LOG_LEVEL", "info"))

	c := loadConfig()
	pipeline, err := newPipeline(c)
	if err != nil {
		logFailure("init failed", err)
		return 1
	}

	if mcpPort != "" {
		return serve(pipeline)
	}

	query := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if query == "" {
		query = env.Str("CREATOR_QUERY", defaultQuery)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting go_creator", slog.String("query", query), slog.String("evaluator", c.Evaluator))
	state, err := pipeline.Run(ctx, query)
	if err != nil {
		logFailure("pipeline failed", err)
		return 1
	}

	printResults(os.Stdout, state.FinalResults)
	slog.Debug("metrics", slog.Any("counters", engine.GetMetrics()))
	return 0
}

func loadConfig() engine.Config {
	verify, err := strconv.ParseBool(env.Str("VERIFY_CEILING", "true"))
	if err != nil {
		slog.Warn("invalid VERIFY_CEILING, using true", slog.Any("error", err))
		verify = true
	}
	return engine.Config{
		LLMAPIKey:               env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks:      env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:              env.Str("LLM_API_BASE", "https://api.groq.com/openai/v1"),
		LLMModel:                env.Str("LLM_MODEL", "llama-3.1-8b-instant"),
		LLMTemperature:          env.Float("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:            env.Int("LLM_MAX_TOKENS", 4096),
		LLMTimeout:              env.Duration("LLM_TIMEOUT", 60*time.Second),
		LLMJSONAttempts:         env.Int("LLM_JSON_ATTEMPTS", engine.DefaultJSONAttempts),
		YouTubeAPIKey:           env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback:   env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		YouTubeRegion:           env.Str("YOUTUBE_REGION", engine.DefaultRegion),
		YouTubeSearchMax:        env.Int("YOUTUBE_SEARCH_MAX", engine.DefaultSearchMax),
		YouTubeTimeout:          env.Duration("YOUTUBE_TIMEOUT", 15*time.Second),
		YouTubeRPS:              env.Float("YOUTUBE_RPS", 5),
		YouTubeBatchConcurrency: env.Int("YOUTUBE_BATCH_CONCURRENCY", 2),
		Evaluator:               env.Str("EVALUATOR", "llm"),
		VerifyCeiling:           verify,
		Retry:                   engine.DefaultRetryConfig,
	}
}

func newPipeline(c engine.Config) (*engine.Pipeline, error) {
	if c.LLMAPIKey == "" {
		return nil, errors.WithHint(errors.New("LLM_API_KEY is not set"), "export an API key for the OpenAI-compatible endpoint in LLM_API_BASE")
	}

	client := llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
		llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
		llm.WithMaxTokens(c.LLMMaxTokens),
		llm.WithTemperature(c.LLMTemperature),
		llm.WithHTTPClient(&http.Client{Timeout: c.LLMTimeout}),
	)
	completer := engine.CompleterFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return client.Complete(ctx, system, prompt)
	})

	yt, err := sources.NewYouTubeClient(sources.YouTubeConfig{
		APIKey:         c.YouTubeAPIKey,
		APIKeyFallback: c.YouTubeAPIKeyFallback,
		HTTPClient: &http.Client{
			Timeout: c.YouTubeTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		RPS:              c.YouTubeRPS,
		BatchConcurrency: c.YouTubeBatchConcurrency,
		Retry:            c.Retry,
	})
	if err != nil {
		return nil, errors.WithHint(err, "create a key in the Google Cloud console with the YouTube Data API v3 enabled")
	}

	return engine.NewPipeline(c, engine.Deps{LLM: completer, Platform: yt})
}

func serve(pipeline *engine.Pipeline) int {
	slog.Info("starting go_creator MCP server", slog.String("port", mcpPort))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_creator",
		Version: version,
	}, nil)
	creatorserver.RegisterTools(server, pipeline)

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_creator",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 300 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func printResults(w io.Writer, results []engine.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching creators found.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "\n%s\n", r.ChannelName)
		fmt.Fprintf(w, "Subs: %s\n", humanize.Comma(r.Subscribers))
		fmt.Fprintf(w, "Avg Views: %s\n", humanize.Comma(r.AvgViews))
		fmt.Fprintf(w, "Why: %s\n", r.Reasoning)
	}
}

func logFailure(msg string, err error) {
	attrs := []any{slog.Any("error", err)}
	if hint := errors.FlattenHints(err); hint != "" {
		attrs = append(attrs, slog.String("hint", hint))
	}
	slog.Error(msg, attrs...)
}

func initLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
