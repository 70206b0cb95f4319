package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// VideoPlatform is the read-only surface of the video platform consumed by the pipeline.
type VideoPlatform interface {
	Search(ctx context.Context, p SearchParams) ([]string, error)
	Videos(ctx context.Context, ids []string) ([]Video, error)
	Channels(ctx context.Context, ids []string) ([]Channel, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	LLM       Completer
	Platform  VideoPlatform
	Evaluator Evaluator        // nil = LLMEvaluator over LLM
	Clock     func() time.Time // nil = time.Now
}

// Pipeline runs intent → discover → videos → channels → evaluate, once each, in order.
type Pipeline struct {
	cfg       Config
	llm       Completer
	platform  VideoPlatform
	evaluator Evaluator
	clock     func() time.Time
}

// NewPipeline wires a pipeline from configuration and collaborators.
func NewPipeline(c Config, d Deps) (*Pipeline, error) {
	c = c.withDefaults()
	if d.LLM == nil {
		return nil, errors.New("pipeline: language model is required")
	}
	if d.Platform == nil {
		return nil, errors.New("pipeline: video platform is required")
	}
	if d.Evaluator == nil {
		ev, err := NewEvaluator(c.Evaluator, d.LLM, c)
		if err != nil {
			return nil, err
		}
		d.Evaluator = ev
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return &Pipeline{cfg: c, llm: d.LLM, platform: d.Platform, evaluator: d.Evaluator, clock: d.Clock}, nil
}

type step struct {
	name string
	run  func(ctx context.Context, s *State) error
}

func (p *Pipeline) steps() []step {
	return []step{
		{"intent", func(ctx context.Context, s *State) error {
			in, err := p.ExtractIntent(ctx, s.Query)
			if err != nil {
				return err
			}
			return s.SetIntent(in)
		}},
		{"discover", func(ctx context.Context, s *State) error {
			ids, err := p.DiscoverVideos(ctx, s.Intent)
			if err != nil {
				return err
			}
			return s.SetVideoIDs(ids)
		}},
		{"videos", func(ctx context.Context, s *State) error {
			videos, err := p.FetchVideoStats(ctx, s.VideoIDs)
			if err != nil {
				return err
			}
			return s.SetVideos(videos)
		}},
		{"channels", func(ctx context.Context, s *State) error {
			channels, err := p.FetchChannels(ctx, s.Videos)
			if err != nil {
				return err
			}
			return s.SetChannels(channels)
		}},
		{"evaluate", func(ctx context.Context, s *State) error {
			results, err := p.Evaluate(ctx, s.Intent, s.Channels)
			if err != nil {
				return err
			}
			return s.SetFinalResults(results)
		}},
	}
}

// Run executes every stage once. On failure the partially filled state is returned
// together with the error of the failing stage.
func (p *Pipeline) Run(ctx context.Context, query string) (*State, error) {
	metrics.PipelineRuns.Add(1)
	s := NewState(query)
	for _, st := range p.steps() {
		err := TrackOperation(ctx, "pipeline:"+st.name, func(ctx context.Context) error {
			return st.run(ctx, s)
		})
		if err != nil {
			metrics.PipelineFailures.Add(1)
			return s, errors.Wrapf(err, "stage %s", st.name)
		}
	}
	slog.Info("pipeline: done",
		slog.Int("videos", len(s.Videos)),
		slog.Int("channels", len(s.Channels)),
		slog.Int("results", len(s.FinalResults)),
	)
	return s, nil
}

// ExtractIntent asks the model for the structured search constraints of query.
func (p *Pipeline) ExtractIntent(ctx context.Context, query string) (Intent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Intent{}, ErrEmptyQuery
	}
	prompt := fmt.Sprintf(intentPrompt, currentDate(p.clock()), query)
	in, err := CompleteJSON(ctx, p.llm, JSONCall{
		Stage:    "intent",
		System:   jsonOnlySystem,
		Prompt:   prompt,
		Attempts: p.cfg.LLMJSONAttempts,
		Timeout:  p.cfg.LLMTimeout,
		Retry:    p.cfg.Retry,
	}, DecodeIntent)
	if err != nil {
		return Intent{}, err
	}
	slog.Info("intent: extracted",
		slog.String("niche", in.Niche),
		slog.String("country", in.Country),
		slog.String("format", string(in.Format)),
		slog.Int64("max_subscribers", in.MaxSubscribers),
		slog.String("metric_priority", in.MetricPriority),
	)
	return in, nil
}

// SearchParamsFor builds the discovery request for intent at time now.
func (p *Pipeline) SearchParamsFor(intent Intent, now time.Time) SearchParams {
	duration := "any"
	if intent.Format == FormatShort {
		duration = "short"
	}
	return SearchParams{
		Query:          intent.Niche,
		Duration:       duration,
		RegionCode:     p.cfg.YouTubeRegion,
		PublishedAfter: PublishedAfter(now),
		MaxResults:     p.cfg.YouTubeSearchMax,
	}
}

// PublishedAfter returns now minus the discovery window as RFC 3339 UTC at second precision.
func PublishedAfter(now time.Time) string {
	return now.UTC().Add(-DiscoveryWindow).Truncate(time.Second).Format(time.RFC3339)
}

// DiscoverVideos searches recent videos for the intent's niche and returns the
// distinct ids, sorted. Zero hits is an empty set, not an error.
func (p *Pipeline) DiscoverVideos(ctx context.Context, intent Intent) ([]string, error) {
	params := p.SearchParamsFor(intent, p.clock())
	ctx, cancel := p.platformContext(ctx)
	defer cancel()

	ids, err := p.platform.Search(ctx, params)
	if err != nil {
		return nil, &DiscoveryError{Niche: intent.Niche, Err: err}
	}
	ids = Unique(ids)
	slices.Sort(ids)
	if len(ids) == 0 {
		slog.Info("discover: no videos", slog.String("niche", intent.Niche), slog.Any("reason", ErrEmptyResult))
	} else {
		slog.Info("discover: videos found", slog.Int("count", len(ids)))
	}
	return ids, nil
}

// FetchVideoStats resolves ids into full video records. No upstream call for an empty set.
func (p *Pipeline) FetchVideoStats(ctx context.Context, ids []string) ([]Video, error) {
	ids = Unique(ids)
	if len(ids) == 0 {
		return []Video{}, nil
	}
	ctx, cancel := p.platformContext(ctx)
	defer cancel()

	videos, err := p.platform.Videos(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "fetch video stats")
	}
	if videos == nil {
		videos = []Video{}
	}
	slog.Info("videos: enriched", slog.Int("requested", len(ids)), slog.Int("returned", len(videos)))
	return videos, nil
}

// ChannelIDs returns the distinct channel ids of videos in first-seen order.
func ChannelIDs(videos []Video) []string {
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		ids = append(ids, v.Snippet.ChannelID)
	}
	return Unique(ids)
}

// FetchChannels resolves the channels behind videos. No upstream call when there are none.
func (p *Pipeline) FetchChannels(ctx context.Context, videos []Video) ([]Channel, error) {
	ids := ChannelIDs(videos)
	if len(ids) == 0 {
		return []Channel{}, nil
	}
	ctx, cancel := p.platformContext(ctx)
	defer cancel()

	channels, err := p.platform.Channels(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "fetch channels")
	}
	if channels == nil {
		channels = []Channel{}
	}
	slog.Info("channels: enriched", slog.Int("requested", len(ids)), slog.Int("returned", len(channels)))
	return channels, nil
}

// Evaluate ranks channels with the configured evaluator and, when enabled,
// enforces the subscriber ceiling on its output.
func (p *Pipeline) Evaluate(ctx context.Context, intent Intent, channels []Channel) ([]Result, error) {
	if len(channels) == 0 {
		return []Result{}, nil
	}
	results, err := p.evaluator.Evaluate(ctx, intent, channels)
	if err != nil {
		return nil, err
	}
	if p.cfg.VerifyCeiling {
		results = VerifyCeiling(results, channels, intent.MaxSubscribers)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

func (p *Pipeline) platformContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.YouTubeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.YouTubeTimeout)
}
