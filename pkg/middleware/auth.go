package middleware

import (
	"context"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/util"

	"github.com/gin-gonic/gin"
)

const scopesContextKey = "auth.scopes"

// KeyVerifier checks an API key credential and returns the scopes granted to
// it. Implemented by services/apikey.
type KeyVerifier interface {
	Verify(ctx context.Context, keyID, secret string) ([]string, error)
}

// APIKeyAuth authenticates the request via Authorization: Bearer or X-API-Key
// and, when scope is non-empty, requires that scope on the key.
func APIKeyAuth(verifier KeyVerifier, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := util.ExtractAPIKey(c.Request)
		if raw == "" {
			_ = c.Error(errutil.Unauthorized("missing API key", nil))
			c.Abort()
			return
		}

		keyID, secret, err := util.ParseAPIKeyCredential(raw)
		if err != nil {
			_ = c.Error(errutil.Unauthorized("malformed API key", err))
			c.Abort()
			return
		}

		scopes, err := verifier.Verify(c.Request.Context(), keyID, secret)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		if scope != "" && !hasScope(scopes, scope) {
			_ = c.Error(errutil.Forbidden("key lacks required scope", nil))
			c.Abort()
			return
		}

		c.Set(scopesContextKey, scopes)
		c.Next()
	}
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want || s == "*" {
			return true
		}
	}
	return false
}

// ScopesFrom returns the scopes attached by APIKeyAuth, if any.
func ScopesFrom(c *gin.Context) []string {
	v, ok := c.Get(scopesContextKey)
	if !ok {
		return nil
	}
	scopes, _ := v.([]string)
	return scopes
}
