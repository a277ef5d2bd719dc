package submission

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the dedup identity of one content item. The text is
// lowercased and trimmed so caption touch-ups do not mint a new identity,
// and image bytes contribute through an md5 digest. Transport-level message
// or event IDs must never feed this hash.
func Fingerprint(text, contentURL string, image []byte) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(text)))
	b.WriteString(contentURL)

	if len(image) > 0 {
		sum := md5.Sum(image)
		b.WriteString(hex.EncodeToString(sum[:]))
	}

	digest := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(digest[:])[:16]
}
