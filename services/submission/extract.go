package submission

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// urlPattern is deliberately permissive; anything that survives it still has
// to clear the platform table before it earns more than the default base.
var urlPattern = regexp.MustCompile(`https?://[-\w.]+(?::\d+)?(?:/[-\w/.@~%]*(?:\?[-\w&=%.+]*)?(?:#[-\w.]*)?)?`)

// ExtractURLs merges the explicitly listed URLs with every URL found in the
// free text, in that order, deduplicated. Explicit entries that do not look
// like URLs are dropped rather than rejected.
func ExtractURLs(text string, explicit []string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, u := range explicit {
		if m := urlPattern.FindString(u); m != "" {
			add(m)
		}
	}
	for _, u := range urlPattern.FindAllString(text, -1) {
		add(u)
	}

	return out
}

// ImagePayload is a screenshot attached to a submission, base64 over the
// wire. Recovery replays and direct API calls share this shape.
type ImagePayload struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (p ImagePayload) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}
