package submission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	cases := []struct {
		url         string
		platform    string
		contentType string
	}{
		{"https://www.youtube.com/watch?v=abc123", "youtube", "video"},
		{"https://youtu.be/abc123", "youtube", "video"},
		{"https://m.youtube.com/watch?v=abc123", "youtube", "video"},
		{"https://www.tiktok.com/@user/video/123", "tiktok", "video"},
		{"https://www.instagram.com/reel/Cxyz/", "instagram", "reel"},
		{"https://www.instagram.com/p/Cxyz/", "instagram", "post"},
		{"https://www.facebook.com/groups/123/posts/456", "facebook", "group_post"},
		{"https://twitter.com/user/status/123", "twitter", "tweet"},
		{"https://x.com/user/status/123", "twitter", "tweet"},
		{"https://www.reddit.com/r/golang/comments/abc", "reddit", "answer"},
		{"https://www.quora.com/What-is-Go", "quora", "answer"},
	}

	for _, tc := range cases {
		platform, contentType := DetectPlatform(tc.url)
		require.Equal(t, tc.platform, platform, tc.url)
		require.Equal(t, tc.contentType, contentType, tc.url)
	}
}

func TestDetectPlatformUnknown(t *testing.T) {
	for _, u := range []string{
		"https://example.com/blog/post-about-x",
		"https://news.ycombinator.com/item?id=1",
		"not a url at all",
		"",
	} {
		platform, contentType := DetectPlatform(u)
		require.Equal(t, PlatformUnknown, platform, u)
		require.Equal(t, ContentTypeUnknown, contentType, u)
	}
}

// Domain matching is on the host, not a substring: a URL merely containing
// a platform name must not be scored as that platform.
func TestDetectPlatformHostNotSubstring(t *testing.T) {
	platform, _ := DetectPlatform("https://mybox.com/x.com/profile")
	require.Equal(t, PlatformUnknown, platform)

	platform, _ = DetectPlatform("https://nottiktok.com.evil.net/video")
	require.Equal(t, PlatformUnknown, platform)
}
