package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	PipelineRuns            atomic.Int64
	PipelineFailures        atomic.Int64
	LLMCalls                atomic.Int64
	LLMErrors               atomic.Int64
	LLMReprompts            atomic.Int64
	YouTubeSearchRequests   atomic.Int64
	YouTubeVideoRequests    atomic.Int64
	YouTubeChannelRequests  atomic.Int64
	YouTubeErrors           atomic.Int64
	YouTubeKeyFallbacks     atomic.Int64
	CeilingViolationsPruned atomic.Int64
}

var metricKeys = []string{
	"pipeline_runs", "pipeline_failures",
	"llm_calls", "llm_errors", "llm_reprompts",
	"youtube_search_requests", "youtube_video_requests", "youtube_channel_requests",
	"youtube_errors", "youtube_key_fallbacks",
	"ceiling_violations_pruned",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"pipeline_runs":             metrics.PipelineRuns.Load(),
		"pipeline_failures":         metrics.PipelineFailures.Load(),
		"llm_calls":                 metrics.LLMCalls.Load(),
		"llm_errors":                metrics.LLMErrors.Load(),
		"llm_reprompts":             metrics.LLMReprompts.Load(),
		"youtube_search_requests":   metrics.YouTubeSearchRequests.Load(),
		"youtube_video_requests":    metrics.YouTubeVideoRequests.Load(),
		"youtube_channel_requests":  metrics.YouTubeChannelRequests.Load(),
		"youtube_errors":            metrics.YouTubeErrors.Load(),
		"youtube_key_fallbacks":     metrics.YouTubeKeyFallbacks.Load(),
		"ceiling_violations_pruned": metrics.CeilingViolationsPruned.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the sources/ sub-package.
func IncrYouTubeSearch()      { metrics.YouTubeSearchRequests.Add(1) }
func IncrYouTubeVideos()      { metrics.YouTubeVideoRequests.Add(1) }
func IncrYouTubeChannels()    { metrics.YouTubeChannelRequests.Add(1) }
func IncrYouTubeErrors()      { metrics.YouTubeErrors.Add(1) }
func IncrYouTubeKeyFallback() { metrics.YouTubeKeyFallbacks.Add(1) }
func IncrLLMReprompts()       { metrics.LLMReprompts.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	} else {
		slog.Debug("operation done", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
