package submission

import (
	"net/url"
	"strings"
)

const (
	PlatformUnknown    = "unknown"
	ContentTypeUnknown = "unknown"
)

// DetectPlatform maps a link to its platform and content type from the fixed
// domain table. URLs outside the table come back as unknown/unknown; they are
// still accepted and scored at the default base, never silently reassigned to
// another platform.
func DetectPlatform(rawURL string) (platform, contentType string) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return PlatformUnknown, ContentTypeUnknown
	}

	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)

	switch {
	case domainIs(host, "youtube.com") || domainIs(host, "youtu.be"):
		return "youtube", "video"
	case domainIs(host, "tiktok.com"):
		return "tiktok", "video"
	case domainIs(host, "instagram.com"):
		if strings.Contains(path, "/reel/") {
			return "instagram", "reel"
		}
		return "instagram", "post"
	case domainIs(host, "facebook.com"):
		return "facebook", "group_post"
	case domainIs(host, "twitter.com") || domainIs(host, "x.com"):
		return "twitter", "tweet"
	case domainIs(host, "reddit.com"):
		return "reddit", "answer"
	case domainIs(host, "quora.com"):
		return "quora", "answer"
	}

	return PlatformUnknown, ContentTypeUnknown
}

func domainIs(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
