package engine

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// Evaluator filters and ranks enriched channels against the subscriber ceiling.
type Evaluator interface {
	Evaluate(ctx context.Context, intent Intent, channels []Channel) ([]Result, error)
}

// LLMEvaluator delegates ranking to the language model.
type LLMEvaluator struct {
	LLM      Completer
	Attempts int
	Timeout  time.Duration
	Retry    RetryConfig
}

type channelDigest struct {
	Name        string `json:"channel_name"`
	ID          string `json:"channel_id"`
	Subscribers *int64 `json:"subscribers"` // nil when hidden
	TotalViews  int64  `json:"total_views"`
	Videos      int64  `json:"video_count"`
	AvgViews    int64  `json:"avg_views"`
	Country     string `json:"country,omitempty"`
	About       string `json:"about,omitempty"`
}

func digestChannels(channels []Channel) string {
	digest := make([]channelDigest, 0, len(channels))
	for _, c := range channels {
		d := channelDigest{
			Name:       c.Snippet.Title,
			ID:         c.ID,
			TotalViews: c.Statistics.ViewCount,
			Videos:     c.Statistics.VideoCount,
			AvgViews:   c.AvgViews(),
			Country:    c.Snippet.Country,
			About:      TruncateRunes(OneLine(c.Snippet.Description), 160, "..."),
		}
		if !c.Statistics.HiddenSubscriberCount {
			subs := c.Statistics.SubscriberCount
			d.Subscribers = &subs
		}
		digest = append(digest, d)
	}
	data, _ := json.MarshalIndent(digest, "", "  ")
	return string(data)
}

func (e LLMEvaluator) Evaluate(ctx context.Context, intent Intent, channels []Channel) ([]Result, error) {
	if len(channels) == 0 {
		return []Result{}, nil
	}
	country := intent.Country
	if country == "" {
		country = "any"
	}
	priority := intent.MetricPriority
	if priority == "" {
		priority = "engagement"
	}
	prompt := fmt.Sprintf(evaluatePrompt, intent.MaxSubscribers, priority, country, intent.Niche, digestChannels(channels))

	return CompleteJSON(ctx, e.LLM, JSONCall{
		Stage:    "evaluate",
		System:   jsonOnlySystem,
		Prompt:   prompt,
		Attempts: e.Attempts,
		Timeout:  e.Timeout,
		Retry:    e.Retry,
	}, DecodeResults)
}

// ScoreEvaluator ranks deterministically: channels strictly below the ceiling with a
// public subscriber count, ordered by average views per subscriber.
type ScoreEvaluator struct{}

// Engagement is average views per video divided by subscribers.
func Engagement(c Channel) float64 {
	subs := max(c.Statistics.SubscriberCount, 1)
	return float64(c.AvgViews()) / float64(subs)
}

func (ScoreEvaluator) Evaluate(_ context.Context, intent Intent, channels []Channel) ([]Result, error) {
	eligible := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if c.Statistics.HiddenSubscriberCount {
			continue
		}
		if c.Statistics.SubscriberCount >= intent.MaxSubscribers {
			continue
		}
		eligible = append(eligible, c)
	}

	slices.SortStableFunc(eligible, func(a, b Channel) int {
		if c := cmp.Compare(Engagement(b), Engagement(a)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Statistics.SubscriberCount, b.Statistics.SubscriberCount); c != 0 {
			return c
		}
		return strings.Compare(a.Snippet.Title, b.Snippet.Title)
	})

	results := make([]Result, 0, len(eligible))
	for _, c := range eligible {
		results = append(results, Result{
			ChannelName: c.Snippet.Title,
			Subscribers: c.Statistics.SubscriberCount,
			AvgViews:    c.AvgViews(),
			Reasoning: fmt.Sprintf("%s subscribers, below the %s ceiling; %s average views per video (%.2f views per subscriber).",
				humanize.Comma(c.Statistics.SubscriberCount),
				humanize.Comma(intent.MaxSubscribers),
				humanize.Comma(c.AvgViews()),
				Engagement(c)),
		})
	}
	return results, nil
}

// VerifyCeiling drops results at or above the ceiling. The subscriber count of a
// channel found in channels (matched by title) replaces the reported one; when
// several channels share a title the largest public count is used.
func VerifyCeiling(results []Result, channels []Channel, ceiling int64) []Result {
	actual := make(map[string]int64, len(channels))
	for _, c := range channels {
		if c.Statistics.HiddenSubscriberCount {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(c.Snippet.Title))
		if subs, ok := actual[key]; !ok || c.Statistics.SubscriberCount > subs {
			actual[key] = c.Statistics.SubscriberCount
		}
	}

	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if subs, ok := actual[strings.ToLower(strings.TrimSpace(r.ChannelName))]; ok {
			r.Subscribers = subs
		}
		if r.Subscribers >= ceiling {
			metrics.CeilingViolationsPruned.Add(1)
			slog.Warn("evaluate: dropping result above subscriber ceiling",
				slog.String("channel", r.ChannelName),
				slog.Int64("subscribers", r.Subscribers),
				slog.Int64("ceiling", ceiling),
			)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// NewEvaluator selects an evaluator by name: "score" or "llm" (default).
func NewEvaluator(name string, llm Completer, c Config) (Evaluator, error) {
	c = c.withDefaults()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "llm":
		if llm == nil {
			return nil, errors.New("llm evaluator requires a completer")
		}
		return LLMEvaluator{LLM: llm, Attempts: c.LLMJSONAttempts, Timeout: c.LLMTimeout, Retry: c.Retry}, nil
	case "score":
		return ScoreEvaluator{}, nil
	}
	return nil, errors.WithHint(errors.Newf("unknown evaluator %q", name), "use EVALUATOR=llm or EVALUATOR=score")
}
