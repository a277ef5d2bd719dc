package oracle

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/ledger"
)

// Verdict is the structured judgement the vision oracle returns for a
// single screenshot.
type Verdict struct {
	Platform    string                   `json:"platform"`
	ContentType string                   `json:"content_type"`
	Metrics     ledger.EngagementMetrics `json:"engagement_metrics"`
	IsAuthentic bool                     `json:"is_authentic"`
	Quality     int                      `json:"quality_score"`
}

// Analyzer inspects a screenshot and reports what it shows. Implementations
// return an ORACLE_UNAVAILABLE error when no judgement could be produced;
// callers decide what an unavailable oracle means for the submission.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, contextText string) (*Verdict, error)
}

// Model responses wrap the JSON in markdown fences more often than not,
// and trailing commas show up on bad days.
var (
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	rawObjectPattern    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingComma       = regexp.MustCompile(`,\s*([}\]])`)
)

func extractJSON(content string) string {
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		return trailingComma.ReplaceAllString(m[1], "$1")
	}
	if m := rawObjectPattern.FindString(content); m != "" {
		return trailingComma.ReplaceAllString(m, "$1")
	}
	return ""
}

// ParseVerdict decodes a model response into a Verdict. Platform and
// content type are lowercased, the quality score is clamped to 0..10 and
// the engagement counts to >= 0, so downstream scoring never sees
// out-of-range values.
func ParseVerdict(raw string) (*Verdict, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, errutil.OracleUnavailable("oracle response contained no JSON verdict", nil)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, errutil.OracleUnavailable("oracle verdict is not valid JSON", err)
	}

	v.Platform = strings.ToLower(strings.TrimSpace(v.Platform))
	v.ContentType = strings.ToLower(strings.TrimSpace(v.ContentType))
	if v.Platform == "" {
		v.Platform = "unknown"
	}
	if v.ContentType == "" {
		v.ContentType = "unknown"
	}
	if v.Quality < 0 {
		v.Quality = 0
	}
	if v.Quality > 10 {
		v.Quality = 10
	}

	// Negative counts would flow straight into scoring and could settle a
	// negative award; points never go below zero.
	clampNonNegative(&v.Metrics.Likes)
	clampNonNegative(&v.Metrics.Comments)
	clampNonNegative(&v.Metrics.Shares)
	clampNonNegative(&v.Metrics.Retweets)
	clampNonNegative(&v.Metrics.Saves)
	clampNonNegative(&v.Metrics.Views)
	return &v, nil
}

func clampNonNegative(n *int64) {
	if *n < 0 {
		*n = 0
	}
}
