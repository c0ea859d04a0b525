package store

import (
	"context"
	"fmt"

	"github.com/sportscouncil/tournament-gateway/config"
	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"github.com/sportscouncil/tournament-gateway/internal/infrastructure/database"
	"go.uber.org/zap"
)

// Repository is the credential collection: point lookups and point updates
// keyed by username.
type Repository interface {
	auth.CredentialStore
	Create(ctx context.Context, rec *auth.CredentialRecord) error
	SetDisabled(ctx context.Context, username string, disabled bool) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open builds the repository selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Repository, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory credential store; accounts are lost on restart")
		return NewMemoryStore(), nil
	case config.DriverMongo:
		client, err := database.NewMongoClient(ctx, cfg.Mongo.URI, logger)
		if err != nil {
			return nil, err
		}
		coll := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		return NewMongoStore(ctx, client, coll)
	case config.DriverPostgres:
		db, err := database.NewPostgresDB(*cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func validate(rec *auth.CredentialRecord) error {
	if rec == nil || rec.Username == "" {
		return fmt.Errorf("credential record needs a username")
	}
	if rec.PasswordHash == "" {
		return fmt.Errorf("credential record %q has no password hash", rec.Username)
	}
	if !rec.Role.Valid() {
		return fmt.Errorf("credential record %q has invalid role %q", rec.Username, rec.Role)
	}
	return nil
}
