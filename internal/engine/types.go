package engine

// --- Intent ---

// Format is the video length class a query asks for.
type Format string

const (
	FormatShort Format = "short-form"
	FormatLong  Format = "long-form"
)

// Intent is the structured record of search constraints extracted from free text.
type Intent struct {
	Niche          string `json:"niche"`
	Country        string `json:"country"`
	Format         Format `json:"format"`
	MaxSubscribers int64  `json:"max_subscribers"`
	MetricPriority string `json:"metric_priority"`
}

// --- Video platform types ---

// SearchParams is one search request against the video platform.
type SearchParams struct {
	Query          string
	Duration       string // "short" or "any"
	RegionCode     string
	PublishedAfter string // RFC 3339, UTC, second precision
	MaxResults     int
}

type VideoSnippet struct {
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
}

type VideoStatistics struct {
	ViewCount    int64 `json:"view_count"`
	LikeCount    int64 `json:"like_count"`
	CommentCount int64 `json:"comment_count"`
}

type VideoContentDetails struct {
	Duration string `json:"duration"` // ISO 8601, e.g. PT58S
}

// Video is a video record with snippet, statistics and content details.
type Video struct {
	ID             string              `json:"id"`
	Snippet        VideoSnippet        `json:"snippet"`
	Statistics     VideoStatistics     `json:"statistics"`
	ContentDetails VideoContentDetails `json:"content_details"`
}

type ChannelSnippet struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CustomURL   string `json:"custom_url,omitempty"`
	Country     string `json:"country,omitempty"`
}

type ChannelStatistics struct {
	SubscriberCount       int64 `json:"subscriber_count"`
	ViewCount             int64 `json:"view_count"`
	VideoCount            int64 `json:"video_count"`
	HiddenSubscriberCount bool  `json:"hidden_subscriber_count,omitempty"`
}

// Channel is a creator account: snippet plus statistics.
type Channel struct {
	ID         string            `json:"id"`
	Snippet    ChannelSnippet    `json:"snippet"`
	Statistics ChannelStatistics `json:"statistics"`
}

// AvgViews returns lifetime views per uploaded video, 0 when the channel has no videos.
func (c Channel) AvgViews() int64 {
	if c.Statistics.VideoCount <= 0 {
		return 0
	}
	return c.Statistics.ViewCount / c.Statistics.VideoCount
}

// --- Output ---

// Result is one ranked creator.
type Result struct {
	ChannelName string `json:"channel_name"`
	Subscribers int64  `json:"subscribers"`
	AvgViews    int64  `json:"avg_views"`
	Reasoning   string `json:"reasoning"`
}
