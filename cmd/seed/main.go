package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/gen"
	"advocacy-engine/pkg/logger"
	"advocacy-engine/services/apikey"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/participant"
)

// seedFile is the bootstrap manifest: the initial roster plus the API keys
// the intake bots and operator tooling authenticate with. Issued secrets are
// printed once and never stored.
type seedFile struct {
	Participants []participant.EnrollRequest `json:"participants"`
	APIKeys      []apikey.IssueRequest       `json:"api_keys"`
}

func main() {
	file := flag.String("file", "seed.json", "path to the seed manifest")
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		ledger.Module,
		apikey.Module,
		participant.Module,
		fx.Invoke(func(sd fx.Shutdowner, p seedParams) {
			if err := run(p, *file); err != nil {
				zap.L().Error("seed failed", zap.Error(err))
				_ = sd.Shutdown(fx.ExitCode(1))
				return
			}
			_ = sd.Shutdown()
		}),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

type seedParams struct {
	fx.In

	Participants *participant.Service
	Keys         *apikey.Service
}

func run(p seedParams, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed manifest: %w", err)
	}

	var manifest seedFile
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parse seed manifest: %w", err)
	}

	ctx := context.Background()

	for _, req := range manifest.Participants {
		enrolled, err := p.Participants.Enroll(ctx, &req)
		if err != nil {
			// Re-running the seed against a live roster is expected; active
			// entries just stay as they are.
			if errutil.HasStatus(err, errutil.StatusConflict) {
				zap.L().Info("participant already enrolled", zap.String("participant_id", req.ID))
				continue
			}
			return fmt.Errorf("enroll %s: %w", req.ID, err)
		}
		zap.L().Info("participant enrolled",
			zap.String("participant_id", enrolled.ID),
			zap.String("handle", enrolled.Handle),
		)
	}

	for _, req := range manifest.APIKeys {
		cred, err := p.Keys.Issue(ctx, &req)
		if err != nil {
			return fmt.Errorf("issue api key for %v: %w", req.Scopes, err)
		}
		// Stdout on purpose: the secret exists nowhere else.
		fmt.Printf("api key issued scopes=%v key_id=%s token=%s\n", req.Scopes, cred.KeyID, cred.Token)
	}

	return nil
}
