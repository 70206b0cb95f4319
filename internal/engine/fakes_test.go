package engine

import (
	"context"
	"strings"
	"sync"
	"time"
)

// scriptedLLM returns queued responses per stage, keyed by a marker in the prompt.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string][]string // marker → responses, consumed in order
	prompts []string
	err     error
}

const (
	intentMarker   = "Extract structured search intent"
	evaluateMarker = "Analyze the YouTube creators"
)

func (s *scriptedLLM) Complete(_ context.Context, _, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	for marker, queue := range s.replies {
		if !strings.Contains(prompt, marker) || len(queue) == 0 {
			continue
		}
		reply := queue[0]
		if len(queue) > 1 {
			s.replies[marker] = queue[1:]
		}
		return reply, nil
	}
	return "", nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// fakePlatform serves canned search, video and channel data and counts calls.
type fakePlatform struct {
	searchIDs []string
	searchErr error
	videos    map[string]Video
	channels  map[string]Channel

	lastSearch   SearchParams
	searchCalls  int
	videoCalls   int
	channelCalls int
	videoIDs     [][]string
	channelIDs   [][]string
}

func (f *fakePlatform) Search(_ context.Context, p SearchParams) ([]string, error) {
	f.searchCalls++
	f.lastSearch = p
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]string(nil), f.searchIDs...), nil
}

func (f *fakePlatform) Videos(_ context.Context, ids []string) ([]Video, error) {
	f.videoCalls++
	f.videoIDs = append(f.videoIDs, ids)
	out := make([]Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakePlatform) Channels(_ context.Context, ids []string) ([]Channel, error) {
	f.channelCalls++
	f.channelIDs = append(f.channelIDs, ids)
	out := make([]Channel, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.channels[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2026, 10, 16, 12, 30, 45, 987654321, time.UTC)

func fixedClock() time.Time { return fixedNow }

func video(id, channelID string, views int64) Video {
	return Video{
		ID:             id,
		Snippet:        VideoSnippet{ChannelID: channelID, Title: "video " + id},
		Statistics:     VideoStatistics{ViewCount: views},
		ContentDetails: VideoContentDetails{Duration: "PT45S"},
	}
}

func channel(id, title string, subs, views, videos int64) Channel {
	return Channel{
		ID:      id,
		Snippet: ChannelSnippet{Title: title, Country: "IN"},
		Statistics: ChannelStatistics{
			SubscriberCount: subs,
			ViewCount:       views,
			VideoCount:      videos,
		},
	}
}

const fashionIntentJSON = `{"niche": "fashion", "country": "IN", "format": "short-form", "max_subscribers": 500000, "metric_priority": "growth"}`

// fashionPlatform: 3 distinct videos across 2 channels, 450k and 600k subscribers.
func fashionPlatform() *fakePlatform {
	return &fakePlatform{
		searchIDs: []string{"vid-c", "vid-a", "vid-b", "vid-a"},
		videos: map[string]Video{
			"vid-a": video("vid-a", "UC-small", 120000),
			"vid-b": video("vid-b", "UC-big", 90000),
			"vid-c": video("vid-c", "UC-small", 80000),
		},
		channels: map[string]Channel{
			"UC-small": channel("UC-small", "Desi Style Diaries", 450000, 90000000, 300),
			"UC-big":   channel("UC-big", "Mumbai Fashion Hub", 600000, 60000000, 400),
		},
	}
}

func testConfig() Config {
	return Config{
		YouTubeRegion:    "IN",
		YouTubeSearchMax: 15,
		LLMJSONAttempts:  3,
		VerifyCeiling:    true,
		Retry:            RetryConfig{MaxRetries: 0, InitialWait: time.Millisecond},
	}
}
