package submission

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractURLsFromText(t *testing.T) {
	text := "just posted https://www.youtube.com/watch?v=abc and also https://x.com/me/status/1 today"

	urls := ExtractURLs(text, nil)
	require.Equal(t, []string{
		"https://www.youtube.com/watch?v=abc",
		"https://x.com/me/status/1",
	}, urls)
}

func TestExtractURLsExplicitFirst(t *testing.T) {
	urls := ExtractURLs("see https://b.example.com/x", []string{"https://a.example.com/y"})
	require.Equal(t, []string{"https://a.example.com/y", "https://b.example.com/x"}, urls)
}

func TestExtractURLsDeduplicates(t *testing.T) {
	text := "https://a.example.com/x and again https://a.example.com/x"
	urls := ExtractURLs(text, []string{"https://a.example.com/x"})
	require.Equal(t, []string{"https://a.example.com/x"}, urls)
}

func TestExtractURLsDropsNonURLs(t *testing.T) {
	urls := ExtractURLs("no links here", []string{"definitely not a url", ""})
	require.Empty(t, urls)
}

func TestExtractURLsWithQueryAndFragment(t *testing.T) {
	text := "watch https://www.youtube.com/watch?v=dQw4&t=42#comments now"
	urls := ExtractURLs(text, nil)
	require.Len(t, urls, 1)
	require.Equal(t, "https://www.youtube.com/watch?v=dQw4&t=42#comments", urls[0])
}

func TestExtractURLsHyphenatedPath(t *testing.T) {
	urls := ExtractURLs("read https://www.quora.com/What-is-Go-good-for", nil)
	require.Equal(t, []string{"https://www.quora.com/What-is-Go-good-for"}, urls)
}

func TestImagePayloadBytes(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	p := ImagePayload{Filename: "shot.png", Data: base64.StdEncoding.EncodeToString(raw)}

	got, err := p.Bytes()
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = ImagePayload{Data: "!!! not base64 !!!"}.Bytes()
	require.Error(t, err)
}
