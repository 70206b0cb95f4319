package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/go_creator/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "secret-primary-key"

type recordedRequest struct {
	path  string
	query map[string]string
}

// fakeDataAPI serves /search, /videos and /channels and records every request.
type fakeDataAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request) bool // true = handled
}

func (f *fakeDataAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{path: r.URL.Path, query: q})
	f.mu.Unlock()

	if f.handler != nil && f.handler(w, r) {
		return
	}

	ids := strings.Split(r.URL.Query().Get("id"), ",")
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/search":
		fmt.Fprint(w, `{"items":[{"id":{"kind":"youtube#video","videoId":"v1"}},{"id":{"kind":"youtube#video","videoId":"v2"}},{"id":{"kind":"youtube#video"}}]}`)
	case "/videos":
		items := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			items = append(items, map[string]any{
				"id":             id,
				"snippet":        map[string]any{"channelId": "UC-" + id, "title": "Video " + id},
				"statistics":     map[string]any{"viewCount": "1200", "likeCount": "34"},
				"contentDetails": map[string]any{"duration": "PT58S"},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	case "/channels":
		items := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			items = append(items, map[string]any{
				"id":      id,
				"snippet": map[string]any{"title": "Channel " + id, "country": "IN"},
				"statistics": map[string]any{
					"subscriberCount":       "450000",
					"viewCount":             "90000000",
					"videoCount":            "300",
					"hiddenSubscriberCount": false,
				},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDataAPI) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.path
	}
	return out
}

func newTestClient(t *testing.T, api *fakeDataAPI, mod func(*YouTubeConfig)) *YouTubeClient {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c := YouTubeConfig{
		APIKey:     testKey,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}
	if mod != nil {
		mod(&c)
	}
	yt, err := NewYouTubeClient(c)
	require.NoError(t, err)
	return yt
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("id%03d", i)
	}
	return out
}

func TestNewYouTubeClientRequiresKey(t *testing.T) {
	_, err := NewYouTubeClient(YouTubeConfig{})
	assert.Error(t, err)
}

func TestSearchSendsParams(t *testing.T) {
	api := &fakeDataAPI{}
	yt := newTestClient(t, api, nil)

	got, err := yt.Search(context.Background(), engine.SearchParams{
		Query:          "fashion",
		Duration:       "short",
		RegionCode:     "IN",
		PublishedAfter: "2026-09-16T12:30:45Z",
		MaxResults:     15,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, got)

	require.Len(t, api.requests, 1)
	q := api.requests[0].query
	assert.Equal(t, "/search", api.requests[0].path)
	assert.Equal(t, "fashion", q["q"])
	assert.Equal(t, "id", q["part"])
	assert.Equal(t, "video", q["type"])
	assert.Equal(t, "short", q["videoDuration"])
	assert.Equal(t, "IN", q["regionCode"])
	assert.Equal(t, "2026-09-16T12:30:45Z", q["publishedAfter"])
	assert.Equal(t, "15", q["maxResults"])
	assert.Equal(t, testKey, q["key"])
}

func TestSearchDefaultsDuration(t *testing.T) {
	api := &fakeDataAPI{}
	yt := newTestClient(t, api, nil)

	_, err := yt.Search(context.Background(), engine.SearchParams{Query: "cooking"})
	require.NoError(t, err)
	q := api.requests[0].query
	assert.Equal(t, "any", q["videoDuration"])
	assert.Equal(t, "15", q["maxResults"])
	_, hasRegion := q["regionCode"]
	assert.False(t, hasRegion)
}

func TestSearchClampsMaxResults(t *testing.T) {
	api := &fakeDataAPI{}
	yt := newTestClient(t, api, nil)

	_, err := yt.Search(context.Background(), engine.SearchParams{Query: "fashion", MaxResults: 200})
	require.NoError(t, err)
	assert.Equal(t, "50", api.requests[0].query["maxResults"])
}

func TestVideosChunksByFifty(t *testing.T) {
	api := &fakeDataAPI{}
	yt := newTestClient(t, api, func(c *YouTubeConfig) { c.BatchConcurrency = 3 })

	in := ids(120)
	videos, err := yt.Videos(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, videos, 120)
	for i, v := range videos {
		assert.Equal(t, in[i], v.ID, "videos must be merged in chunk order")
	}
	assert.Equal(t, "UC-id000", videos[0].Snippet.ChannelID)
	assert.Equal(t, int64(1200), videos[0].Statistics.ViewCount)
	assert.Equal(t, int64(34), videos[0].Statistics.LikeCount)
	assert.Equal(t, int64(0), videos[0].Statistics.CommentCount)
	assert.Equal(t, "PT58S", videos[0].ContentDetails.Duration)

	assert.Equal(t, []string{"/videos", "/videos", "/videos"}, api.paths())
	sizes := map[int]int{}
	for _, r := range api.requests {
		sizes[len(strings.Split(r.query["id"], ","))]++
		assert.Equal(t, "snippet,statistics,contentDetails", r.query["part"])
		assert.NotContains(t, r.query, "maxResults", "maxResults is not supported with id")
	}
	assert.Equal(t, map[int]int{50: 2, 20: 1}, sizes)
}

func TestChannelsDecodesStatistics(t *testing.T) {
	api := &fakeDataAPI{}
	yt := newTestClient(t, api, nil)

	channels, err := yt.Channels(context.Background(), []string{"UC-a", "UC-b"})
	require.NoError(t, err)
	require.Len(t, channels, 2)
	c := channels[0]
	assert.Equal(t, "UC-a", c.ID)
	assert.Equal(t, "Channel UC-a", c.Snippet.Title)
	assert.Equal(t, int64(450000), c.Statistics.SubscriberCount)
	assert.Equal(t, int64(300000), c.AvgViews())
	assert.Equal(t, "snippet,statistics", api.requests[0].query["part"])
	assert.NotContains(t, api.requests[0].query, "maxResults")
}

func TestEmptyLookupsMakeNoRequest(t *testing.T) {
	api := &fakeDataAPI{}
	yt := newTestClient(t, api, nil)

	videos, err := yt.Videos(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)

	channels, err := yt.Channels(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, channels)

	assert.Empty(t, api.paths())
}

func TestQuotaErrorFallsBackToSecondKey(t *testing.T) {
	api := &fakeDataAPI{handler: func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Query().Get("key") != testKey {
			return false
		}
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.","errors":[{"reason":"quotaExceeded"}]}}`)
		return true
	}}
	yt := newTestClient(t, api, func(c *YouTubeConfig) { c.APIKeyFallback = "backup-key" })

	got, err := yt.Search(context.Background(), engine.SearchParams{Query: "fashion"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, got)
	require.Len(t, api.requests, 2)
	assert.Equal(t, "backup-key", api.requests[1].query["key"])
}

func TestQuotaErrorWithoutFallback(t *testing.T) {
	api := &fakeDataAPI{handler: func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`)
		return true
	}}
	yt := newTestClient(t, api, nil)

	_, err := yt.Search(context.Background(), engine.SearchParams{Query: "fashion"})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUpstreamService)

	var upErr *engine.UpstreamServiceError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)
	assert.Equal(t, "quotaExceeded: quota", upErr.Body)
}

func TestBadRequestIsUpstreamError(t *testing.T) {
	api := &fakeDataAPI{handler: func(w http.ResponseWriter, r *http.Request) bool {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"Invalid value for regionCode","errors":[{"reason":"invalidRegionCode"}]}}`)
		return true
	}}
	yt := newTestClient(t, api, nil)

	_, err := yt.Channels(context.Background(), []string{"UC-a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUpstreamService)
	assert.Contains(t, err.Error(), "invalidRegionCode: Invalid value for regionCode")
	assert.NotContains(t, err.Error(), testKey)
	assert.Len(t, api.requests, 1, "4xx must not be retried")
}

func TestRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	api := &fakeDataAPI{handler: func(w http.ResponseWriter, r *http.Request) bool {
		mu.Lock()
		defer mu.Unlock()
		if failures == 0 {
			return false
		}
		failures--
		w.WriteHeader(http.StatusServiceUnavailable)
		return true
	}}
	yt := newTestClient(t, api, func(c *YouTubeConfig) {
		c.Retry = engine.RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, Multiplier: 2}
	})

	got, err := yt.Search(context.Background(), engine.SearchParams{Query: "fashion"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, api.requests, 3)
}

func TestMalformedBodyIsUpstreamError(t *testing.T) {
	api := &fakeDataAPI{handler: func(w http.ResponseWriter, r *http.Request) bool {
		fmt.Fprint(w, `{"items": [`)
		return true
	}}
	yt := newTestClient(t, api, nil)

	_, err := yt.Search(context.Background(), engine.SearchParams{Query: "fashion"})
	assert.ErrorIs(t, err, engine.ErrUpstreamService)
}

func TestTransportErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	yt, err := NewYouTubeClient(YouTubeConfig{APIKey: testKey, BaseURL: base})
	require.NoError(t, err)

	_, err = yt.Search(context.Background(), engine.SearchParams{Query: "fashion"})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUpstreamService)
	assert.NotContains(t, err.Error(), testKey)
}
