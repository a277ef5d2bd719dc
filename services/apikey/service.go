package apikey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/repository"
	"advocacy-engine/pkg/security"
)

const secretBytes = 24

// Keys live on the primary store only; a mirror-served key check would let a
// revocation go unnoticed while the primary is down.
type Service struct {
	node *snowflake.Node
	repo repository.Repository[APIKey]
}

type ServiceParams struct {
	fx.In

	Conns *db.Conns
	Node  *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: repository.ProvideStore[APIKey](p.Conns.Primary),
	}
}

type IssueRequest struct {
	Scopes    []string `json:"scopes"`
	CreatedBy string   `json:"created_by"`
}

type Credential struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"` // shown once, only the hash is stored
	Token  string `json:"token"`  // key_id.secret, ready for the Authorization header
}

// Issue mints a key and returns the plaintext credential. The secret is not
// recoverable afterwards.
func (s *Service) Issue(ctx context.Context, req *IssueRequest) (*Credential, error) {
	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		return nil, errutil.BadRequest("at least one scope is required", nil)
	}

	suffix, err := security.GenerateBase64Secret(6)
	if err != nil {
		return nil, errutil.Internal("key id generation failed", err)
	}
	keyID := "adv_" + strings.ToLower(suffix)

	secret, err := security.GenerateBase64Secret(secretBytes)
	if err != nil {
		return nil, errutil.Internal("secret generation failed", err)
	}

	hash, err := security.HashArgon2(secret)
	if err != nil {
		return nil, errutil.Internal("secret hashing failed", err)
	}

	key := &APIKey{
		ID:         s.node.Generate().String(),
		KeyID:      keyID,
		SecretHash: hash,
		Scopes:     scopes,
		Status:     StatusActive,
	}
	if req.CreatedBy != "" {
		key.CreatedBy = &req.CreatedBy
	}

	if err := s.repo.Create(ctx, key); err != nil {
		return nil, errutil.Internal("failed to store api key", err)
	}

	zap.L().Info("api key issued", zap.String("key_id", keyID), zap.Strings("scopes", scopes))

	return &Credential{
		KeyID:  keyID,
		Secret: secret,
		Token:  fmt.Sprintf("%s.%s", keyID, secret),
	}, nil
}

// Revoke disables a key without deleting it.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	key, err := s.repo.FindOne(ctx, &APIKey{KeyID: keyID})
	if err != nil {
		return errutil.Internal("api key lookup failed", err)
	}
	if key == nil {
		return errutil.NotFound("api key not found", nil,
			errutil.WithDetails(errutil.Detail{Field: "key_id", Message: keyID}))
	}

	return s.repo.Update(ctx, key.ID, map[string]any{"status": StatusRevoked})
}

// Verify implements middleware.KeyVerifier. Secrets compare in constant time
// via argon2; a matching key updates last_used_at best-effort.
func (s *Service) Verify(ctx context.Context, keyID, secret string) ([]string, error) {
	key, err := s.repo.FindOne(ctx, &APIKey{KeyID: keyID})
	if err != nil {
		return nil, errutil.Internal("api key lookup failed", err)
	}
	if key == nil || key.Status != StatusActive {
		return nil, errutil.Unauthorized("unknown or revoked API key", nil)
	}

	ok, err := security.VerifyArgon2(secret, key.SecretHash)
	if err != nil || !ok {
		return nil, errutil.Unauthorized("invalid API key secret", nil)
	}

	now := time.Now()
	if err := s.repo.Update(ctx, key.ID, map[string]any{"last_used_at": &now}); err != nil {
		zap.L().Warn("failed to record api key usage", zap.String("key_id", keyID), zap.Error(err))
	}

	return key.Scopes, nil
}

func normalizeScopes(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
