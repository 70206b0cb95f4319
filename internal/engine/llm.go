package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Completer returns a text completion for a system instruction and a user message.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// currentDate returns the date in ISO 8601 format (UTC).
func currentDate(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// JSONCall describes one structured LLM request.
type JSONCall struct {
	Stage    string
	System   string
	Prompt   string
	Attempts int           // total attempts including re-prompts (min 1)
	Timeout  time.Duration // per attempt, 0 = caller's deadline only
	Retry    RetryConfig   // transport retries inside one attempt
}

// CompleteJSON calls the model and decodes the response with decode.
// A decode failure is fed back to the model as a corrective re-prompt until
// Attempts is exhausted; the last failure is returned as *MalformedModelOutputError.
func CompleteJSON[T any](ctx context.Context, llm Completer, call JSONCall, decode func(string) (T, error)) (T, error) {
	var zero T
	attempts := max(call.Attempts, 1)
	prompt := call.Prompt

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := completeOnce(ctx, llm, call, prompt)
		if err != nil {
			return zero, errors.Wrapf(err, "%s: llm call", call.Stage)
		}

		out, err := decode(stripFences(raw))
		if err == nil {
			return out, nil
		}
		lastErr = &MalformedModelOutputError{Stage: call.Stage, Raw: raw, Err: err}
		slog.Warn("llm: undecodable response",
			slog.String("stage", call.Stage),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt < attempts {
			IncrLLMReprompts()
			prompt = fmt.Sprintf(repairPrompt, call.Prompt, TruncateRunes(raw, 2000, "..."), err)
		}
	}
	return zero, lastErr
}

func completeOnce(ctx context.Context, llm Completer, call JSONCall, prompt string) (string, error) {
	return RetryDo(ctx, call.Retry, func() (string, error) {
		callCtx := ctx
		if call.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, call.Timeout)
			defer cancel()
		}
		metrics.LLMCalls.Add(1)
		raw, err := llm.Complete(callCtx, call.System, prompt)
		if err != nil {
			metrics.LLMErrors.Add(1)
			return "", err
		}
		return raw, nil
	})
}

var intentFields = []string{"niche", "country", "format", "max_subscribers", "metric_priority"}

// DecodeIntent strictly decodes an intent object. Every field is required;
// unknown fields are ignored.
func DecodeIntent(raw string) (Intent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Intent{}, errors.Wrap(err, "intent is not a JSON object")
	}
	if fields == nil {
		return Intent{}, errors.New("intent is null")
	}
	for _, name := range intentFields {
		if _, ok := fields[name]; !ok {
			return Intent{}, errors.Newf("missing field %q", name)
		}
	}

	var in Intent
	var err error
	if in.Niche, err = decodeString(fields, "niche"); err != nil {
		return Intent{}, err
	}
	if strings.TrimSpace(in.Niche) == "" {
		return Intent{}, errors.New(`field "niche" is empty`)
	}
	if in.Country, err = decodeString(fields, "country"); err != nil {
		return Intent{}, err
	}
	in.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	format, err := decodeString(fields, "format")
	if err != nil {
		return Intent{}, err
	}
	if in.Format, err = ParseFormat(format); err != nil {
		return Intent{}, err
	}
	if in.MaxSubscribers, err = decodeCount(fields["max_subscribers"]); err != nil {
		return Intent{}, errors.Wrap(err, `field "max_subscribers"`)
	}
	if in.MaxSubscribers <= 0 {
		return Intent{}, errors.New(`field "max_subscribers" must be positive`)
	}
	if in.MetricPriority, err = decodeString(fields, "metric_priority"); err != nil {
		return Intent{}, err
	}
	return in, nil
}

// ParseFormat normalises the model's spelling of a video format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short-form", "short", "shorts", "shortform", "short form":
		return FormatShort, nil
	case "long-form", "long", "longform", "long form":
		return FormatLong, nil
	}
	return "", errors.Newf(`field "format" has unknown value %q`, s)
}

func decodeString(fields map[string]json.RawMessage, name string) (string, error) {
	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil {
		return "", errors.Newf("field %q must be a string", name)
	}
	return s, nil
}

var resultFields = []string{"channel_name", "subscribers", "avg_views", "reasoning"}

// DecodeResults strictly decodes the evaluator's JSON array. An object wrapping
// the array under "results" is unwrapped.
func DecodeResults(raw string) ([]Result, error) {
	if strings.TrimSpace(raw) == "null" {
		return nil, errors.New("results are null")
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		var wrapped struct {
			Results *[]map[string]json.RawMessage `json:"results"`
		}
		if werr := json.Unmarshal([]byte(raw), &wrapped); werr != nil || wrapped.Results == nil {
			return nil, errors.Wrap(err, "results are not a JSON array")
		}
		items = *wrapped.Results
	}

	results := make([]Result, 0, len(items))
	for i, item := range items {
		if item == nil {
			return nil, errors.Newf("result %d is null", i)
		}
		for _, name := range resultFields {
			if _, ok := item[name]; !ok {
				return nil, errors.Newf("result %d: missing field %q", i, name)
			}
		}
		var r Result
		var err error
		if r.ChannelName, err = decodeString(item, "channel_name"); err != nil {
			return nil, errors.Wrapf(err, "result %d", i)
		}
		if strings.TrimSpace(r.ChannelName) == "" {
			return nil, errors.Newf(`result %d: field "channel_name" is empty`, i)
		}
		if r.Subscribers, err = decodeCount(item["subscribers"]); err != nil {
			return nil, errors.Wrapf(err, `result %d: field "subscribers"`, i)
		}
		if r.AvgViews, err = decodeCount(item["avg_views"]); err != nil {
			return nil, errors.Wrapf(err, `result %d: field "avg_views"`, i)
		}
		if r.Reasoning, err = decodeString(item, "reasoning"); err != nil {
			return nil, errors.Wrapf(err, "result %d", i)
		}
		results = append(results, r)
	}
	return results, nil
}
