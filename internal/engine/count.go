package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseCount reads a human-written count such as "500000", "500,000", "500k",
// "1.2M" or "2 million". Suffix k is thousands, m million, b billion.
func ParseCount(s string) (int64, error) {
	orig := s
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(",", "", "_", "", " ", "", "+", "").Replace(s)
	for _, word := range []string{"subscribers", "subs", "views"} {
		s = strings.TrimSuffix(s, word)
	}
	if s == "" {
		return 0, errors.Newf("empty count %q", orig)
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "thousand"):
		mult, s = 1e3, strings.TrimSuffix(s, "thousand")
	case strings.HasSuffix(s, "million"):
		mult, s = 1e6, strings.TrimSuffix(s, "million")
	case strings.HasSuffix(s, "billion"):
		mult, s = 1e9, strings.TrimSuffix(s, "billion")
	case strings.HasSuffix(s, "k"):
		mult, s = 1e3, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1e6, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "b"):
		mult, s = 1e9, strings.TrimSuffix(s, "b")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Newf("invalid count %q", orig)
	}
	v := math.Round(f * mult)
	if v < 0 || v > math.MaxInt64/2 {
		return 0, errors.Newf("count %q out of range", orig)
	}
	return int64(v), nil
}

// decodeCount accepts a JSON number or a JSON string holding a count.
func decodeCount(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return ParseCount(n.String())
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseCount(s)
	}
	return 0, errors.Newf("expected number, got %s", string(raw))
}
