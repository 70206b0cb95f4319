package engine

// LLM prompt templates. Data only, no logic.

// jsonOnlySystem constrains every structured call to raw JSON.
const jsonOnlySystem = `You are a strict JSON generator. Respond with raw JSON only: no markdown, no code fences, no commentary.`

// intentPrompt extracts search constraints from a free-text request.
// Args: current date, query.
const intentPrompt = `Extract structured search intent from the creator discovery request below.

Current date: %s

Return ONE JSON object with exactly these fields:
{
  "niche": "content category to search for, short keyword phrase (e.g. fashion, home cooking)",
  "country": "ISO 3166-1 alpha-2 country code of the creators, empty string if not stated",
  "format": "short-form" or "long-form",
  "max_subscribers": integer subscriber ceiling (e.g. 500000 for "under 500k subs"),
  "metric_priority": "the metric the user cares about most (e.g. growth, engagement, views)"
}

Rules:
- format is "short-form" when the request mentions shorts, reels or short videos, otherwise "long-form"
- max_subscribers must be a plain integer, no suffixes
- no other fields

Request: "%s"`

// evaluatePrompt ranks enriched channels.
// Args: max subscribers, metric priority, country, niche, channel digest JSON.
const evaluatePrompt = `Analyze the YouTube creators below and pick the best candidates.

Rules:
- subscribers must be strictly below %d
- prefer strong engagement: high average views relative to subscriber count
- the user cares most about: %s
- preferred creator country: %s
- niche: %s

Return a JSON array ordered best first. Each element:
{"channel_name": "exact channel title", "subscribers": integer, "avg_views": integer, "reasoning": "one or two sentences"}
Return [] when no channel qualifies.

CHANNELS:
%s`

// repairPrompt re-asks after a response failed to decode.
// Args: original prompt, previous raw response, decode error.
const repairPrompt = `%s

Your previous response could not be used:
%s

Error: %s

Answer again with valid JSON only, matching the requested shape exactly.`
