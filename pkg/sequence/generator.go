package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"advocacy-engine/pkg/rediskey"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator issues human-readable reference codes. Codes are presentation
// identifiers only; rows are keyed by snowflake ids.
type Generator interface {
	NextSubmissionCode(ctx context.Context) (string, error)
	NextExportCode(ctx context.Context, cycleID string) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextSubmissionCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "SUB")
}

func (g *RedisGenerator) NextExportCode(ctx context.Context, cycleID string) (string, error) {
	key := rediskey.BuildExportSequenceKey(cycleID)
	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RPT-%s-%02d", cycleID, seq), nil
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	today := time.Now().UTC().Format("060102")
	key := rediskey.BuildDailySequenceKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(time.Now().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	// Base36, padded to 3 chars, plus a short random suffix so codes are not
	// guessable from each other.
	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
