package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_creator/internal/engine"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// YouTube Data API v3: search, videos.list and channels.list.

const (
	ytDataAPIBase = "https://www.googleapis.com/youtube/v3"
	ytBatchLimit  = 50 // max ids per videos.list / channels.list request
	ytSearchLimit = 50 // max maxResults for search.list
)

// YouTubeConfig configures YouTubeClient.
type YouTubeConfig struct {
	APIKey           string
	APIKeyFallback   string // used when the primary key is rejected with 403 (quota)
	BaseURL          string // empty = Data API v3
	HTTPClient       *http.Client
	RPS              float64 // <= 0 = unpaced
	BatchConcurrency int     // parallel chunk requests, <= 0 = 1
	Retry            engine.RetryConfig
}

// YouTubeClient implements engine.VideoPlatform over the YouTube Data API.
type YouTubeClient struct {
	base        string
	keys        []string
	http        *http.Client
	limiter     *rate.Limiter
	concurrency int
	retry       engine.RetryConfig
}

var _ engine.VideoPlatform = (*YouTubeClient)(nil)

// NewYouTubeClient validates c and builds a client.
func NewYouTubeClient(c YouTubeConfig) (*YouTubeClient, error) {
	if c.APIKey == "" {
		return nil, errors.New("youtube: API key is required (YOUTUBE_API_KEY)")
	}
	keys := []string{c.APIKey}
	if c.APIKeyFallback != "" {
		keys = append(keys, c.APIKeyFallback)
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = ytDataAPIBase
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	limit := rate.Inf
	if c.RPS > 0 {
		limit = rate.Limit(c.RPS)
	}
	return &YouTubeClient{
		base:        base,
		keys:        keys,
		http:        hc,
		limiter:     rate.NewLimiter(limit, 1),
		concurrency: max(c.BatchConcurrency, 1),
		retry:       c.Retry,
	}, nil
}

// --- Data API wire types ---

type ytSearchResp struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type ytVideosResp struct {
	Items []ytVideo `json:"items"`
}

type ytVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		ChannelID    string `json:"channelId"`
		ChannelTitle string `json:"channelTitle"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

type ytChannelsResp struct {
	Items []ytChannel `json:"items"`
}

type ytChannel struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		CustomURL   string `json:"customUrl"`
		Country     string `json:"country"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount             string `json:"viewCount"`
		SubscriberCount       string `json:"subscriberCount"`
		VideoCount            string `json:"videoCount"`
		HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
	} `json:"statistics"`
}

type ytErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// parseStat decodes the Data API's string-encoded counters. Missing or invalid → 0.
func parseStat(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (v ytVideo) toVideo() engine.Video {
	return engine.Video{
		ID: v.ID,
		Snippet: engine.VideoSnippet{
			ChannelID:    v.Snippet.ChannelID,
			ChannelTitle: v.Snippet.ChannelTitle,
			Title:        v.Snippet.Title,
			Description:  v.Snippet.Description,
			PublishedAt:  v.Snippet.PublishedAt,
		},
		Statistics: engine.VideoStatistics{
			ViewCount:    parseStat(v.Statistics.ViewCount),
			LikeCount:    parseStat(v.Statistics.LikeCount),
			CommentCount: parseStat(v.Statistics.CommentCount),
		},
		ContentDetails: engine.VideoContentDetails{Duration: v.ContentDetails.Duration},
	}
}

func (c ytChannel) toChannel() engine.Channel {
	return engine.Channel{
		ID: c.ID,
		Snippet: engine.ChannelSnippet{
			Title:       c.Snippet.Title,
			Description: c.Snippet.Description,
			CustomURL:   c.Snippet.CustomURL,
			Country:     c.Snippet.Country,
		},
		Statistics: engine.ChannelStatistics{
			SubscriberCount:       parseStat(c.Statistics.SubscriberCount),
			ViewCount:             parseStat(c.Statistics.ViewCount),
			VideoCount:            parseStat(c.Statistics.VideoCount),
			HiddenSubscriberCount: c.Statistics.HiddenSubscriberCount,
		},
	}
}

// Search returns the video ids matching p, in upstream order.
func (y *YouTubeClient) Search(ctx context.Context, p engine.SearchParams) ([]string, error) {
	engine.IncrYouTubeSearch()
	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = engine.DefaultSearchMax
	}
	maxResults = min(maxResults, ytSearchLimit)
	duration := p.Duration
	if duration == "" {
		duration = "any"
	}

	params := url.Values{}
	params.Set("part", "id")
	params.Set("q", p.Query)
	params.Set("type", "video")
	params.Set("videoDuration", duration)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if p.RegionCode != "" {
		params.Set("regionCode", p.RegionCode)
	}
	if p.PublishedAfter != "" {
		params.Set("publishedAfter", p.PublishedAfter)
	}

	var resp ytSearchResp
	if err := y.get(ctx, "youtube search", "/search", params, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

// Videos resolves ids into snippet, statistics and content details.
// Ids are requested in chunks of 50; results are merged in chunk order.
func (y *YouTubeClient) Videos(ctx context.Context, ids []string) ([]engine.Video, error) {
	return batchLookup(ctx, ids, y.concurrency, func(ctx context.Context, chunk []string) ([]engine.Video, error) {
		engine.IncrYouTubeVideos()
		params := url.Values{}
		params.Set("part", "snippet,statistics,contentDetails")
		params.Set("id", strings.Join(chunk, ","))

		var resp ytVideosResp
		if err := y.get(ctx, "youtube videos", "/videos", params, &resp); err != nil {
			return nil, err
		}
		videos := make([]engine.Video, 0, len(resp.Items))
		for _, item := range resp.Items {
			videos = append(videos, item.toVideo())
		}
		return videos, nil
	})
}

// Channels resolves channel ids into snippet and statistics, chunked like Videos.
func (y *YouTubeClient) Channels(ctx context.Context, ids []string) ([]engine.Channel, error) {
	return batchLookup(ctx, ids, y.concurrency, func(ctx context.Context, chunk []string) ([]engine.Channel, error) {
		engine.IncrYouTubeChannels()
		params := url.Values{}
		params.Set("part", "snippet,statistics")
		params.Set("id", strings.Join(chunk, ","))

		var resp ytChannelsResp
		if err := y.get(ctx, "youtube channels", "/channels", params, &resp); err != nil {
			return nil, err
		}
		channels := make([]engine.Channel, 0, len(resp.Items))
		for _, item := range resp.Items {
			channels = append(channels, item.toChannel())
		}
		return channels, nil
	})
}

// batchLookup splits ids into API-sized chunks, fetches them with bounded
// concurrency and concatenates the results in chunk order.
func batchLookup[T any](ctx context.Context, ids []string, concurrency int, fetch func(context.Context, []string) ([]T, error)) ([]T, error) {
	chunks := engine.Chunk(ids, ytBatchLimit)
	if len(chunks) == 0 {
		return []T{}, nil
	}
	parts := make([][]T, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, chunk := range chunks {
		g.Go(func() error {
			items, err := fetch(gctx, chunk)
			if err != nil {
				return err
			}
			parts[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// get performs one Data API call, falling back to the secondary key on 403.
func (y *YouTubeClient) get(ctx context.Context, op, path string, params url.Values, out any) error {
	var lastErr error
	for i, key := range y.keys {
		if i > 0 {
			engine.IncrYouTubeKeyFallback()
			slog.Debug("youtube: primary key rejected, trying fallback", slog.String("op", op), slog.Any("err", lastErr))
		}
		err := y.getWithKey(ctx, op, path, params, key, out)
		if err == nil {
			return nil
		}
		lastErr = err
		var upErr *engine.UpstreamServiceError
		if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusForbidden {
			return err
		}
	}
	return lastErr
}

func (y *YouTubeClient) getWithKey(ctx context.Context, op, path string, params url.Values, key string, out any) error {
	q := make(url.Values, len(params)+1)
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", key)
	apiURL := y.base + path + "?" + q.Encode()

	resp, err := engine.RetryHTTP(ctx, y.retry, func() (*http.Response, error) {
		if err := y.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		req.Header.Set("Accept", "application/json")
		return y.http.Do(req)
	})
	if err != nil {
		engine.IncrYouTubeErrors()
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = y.base + path // never leak the key
		}
		status := 0
		var statusErr *engine.HTTPStatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		return &engine.UpstreamServiceError{Op: op, StatusCode: status, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		engine.IncrYouTubeErrors()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &engine.UpstreamServiceError{Op: op, StatusCode: resp.StatusCode, Body: apiErrorMessage(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		engine.IncrYouTubeErrors()
		return &engine.UpstreamServiceError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// apiErrorMessage extracts "reason: message" from a Data API error body.
func apiErrorMessage(body []byte) string {
	var e ytErrorResp
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return engine.TruncateRunes(strings.TrimSpace(string(body)), 512, "...")
	}
	if len(e.Error.Errors) > 0 && e.Error.Errors[0].Reason != "" {
		return e.Error.Errors[0].Reason + ": " + e.Error.Message
	}
	return e.Error.Message
}
