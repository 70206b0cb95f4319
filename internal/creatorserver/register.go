package creatorserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_creator/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Runner is the part of engine.Pipeline the tools need.
type Runner interface {
	Run(ctx context.Context, query string) (*engine.State, error)
}

// CreatorSearchInput is the input of creator_search.
type CreatorSearchInput struct {
	Query string `json:"query" jsonschema:"Natural-language creator request, e.g. 'Find Indian fashion creators under 500k subs whose shorts are growing fast'"`
}

// CreatorSearchOutput is the structured output of creator_search.
type CreatorSearchOutput struct {
	Query    string          `json:"query"`
	Intent   engine.Intent   `json:"intent"`
	Videos   int             `json:"videos_scanned"`
	Channels int             `json:"channels_scanned"`
	Results  []engine.Result `json:"results"`
}

// RegisterTools registers creator_search on the given MCP server.
func RegisterTools(server *mcp.Server, runner Runner) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "creator_search",
		Description: "Find YouTube creators matching a natural-language request. Extracts niche, country, format and subscriber ceiling with an LLM, searches videos from the last 30 days, enriches videos and channels via the YouTube Data API, and returns ranked channels with subscribers, average views and reasoning.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CreatorSearchInput) (*mcp.CallToolResult, CreatorSearchOutput, error) {
		out, err := SearchCreators(ctx, runner, input)
		return nil, out, err
	})
}

// SearchCreators runs the pipeline for one tool call.
func SearchCreators(ctx context.Context, runner Runner, input CreatorSearchInput) (CreatorSearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return CreatorSearchOutput{}, fmt.Errorf("query is required")
	}

	state, err := runner.Run(ctx, query)
	if err != nil {
		slog.Warn("creator_search error", slog.String("query", query), slog.Any("error", err))
		return CreatorSearchOutput{}, fmt.Errorf("creator search failed: %w", err)
	}

	return CreatorSearchOutput{
		Query:    query,
		Intent:   state.Intent,
		Videos:   len(state.Videos),
		Channels: len(state.Channels),
		Results:  state.FinalResults,
	}, nil
}
