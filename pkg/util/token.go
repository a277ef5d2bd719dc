package util

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var ErrMalformedCredential = errors.New("util: malformed api key credential")

// ExtractAPIKey pulls the raw credential from Authorization: Bearer or the
// X-API-Key header. Empty string means no credential was presented.
func ExtractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// ParseAPIKeyCredential splits "key_id.secret" into its parts.
func ParseAPIKeyCredential(raw string) (keyID, secret string, err error) {
	keyID, secret, ok := strings.Cut(raw, ".")
	if !ok || keyID == "" || secret == "" {
		return "", "", ErrMalformedCredential
	}
	return keyID, secret, nil
}

func GenerateVerificationCode() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
