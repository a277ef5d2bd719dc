package submission

import "advocacy-engine/services/ledger"

// Base points by content type. Content the domain table does not recognize
// still earns the default base.
var basePoints = map[string]int64{
	"video":      15,
	"answer":     12,
	"group_post": 10,
	"post":       8,
	"reel":       8,
	"tweet":      6,
	"thread":     6,
	"story":      3,
}

const defaultBasePoints = 3

// Score computes the points for one settled item. Replies earn a flat 1
// regardless of content type or engagement. The engagement bonus uses
// integer division throughout.
func Score(contentType string, m ledger.EngagementMetrics, isReply bool) int64 {
	if isReply {
		return 1
	}

	base, ok := basePoints[contentType]
	if !ok {
		base = defaultBasePoints
	}

	bonus := m.Likes/25 + (m.Comments/5)*2 + m.Shares + m.Retweets + m.Saves
	return base + bonus
}
