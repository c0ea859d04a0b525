package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoStore struct {
	cli  *mongo.Client
	coll *mongo.Collection
}

// credentialDoc mirrors the users collection. Older documents carry
// is_admin and hashed_password instead of role and password_hash.
type credentialDoc struct {
	Username       string    `bson:"username"`
	PasswordHash   string    `bson:"password_hash,omitempty"`
	HashedPassword string    `bson:"hashed_password,omitempty"`
	Role           string    `bson:"role,omitempty"`
	IsAdmin        *bool     `bson:"is_admin,omitempty"`
	Disabled       bool      `bson:"disabled"`
	CreatedAt      time.Time `bson:"created_at,omitempty"`
}

func (d credentialDoc) record() (*auth.CredentialRecord, error) {
	hash := d.PasswordHash
	if hash == "" {
		hash = d.HashedPassword
	}

	var role auth.Role
	switch {
	case d.Role != "":
		r, err := auth.ParseRole(d.Role)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", d.Username, err)
		}
		role = r
	case d.IsAdmin != nil && *d.IsAdmin:
		role = auth.RoleAdmin
	default:
		role = auth.RoleUser
	}

	return &auth.CredentialRecord{
		Username:     d.Username,
		PasswordHash: hash,
		Role:         role,
		Disabled:     d.Disabled,
		CreatedAt:    d.CreatedAt,
	}, nil
}

// NewMongoStore wraps coll and ensures the unique username index.
func NewMongoStore(ctx context.Context, cli *mongo.Client, coll *mongo.Collection) (*MongoStore, error) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure username index: %w", err)
	}
	return &MongoStore{cli: cli, coll: coll}, nil
}

func (s *MongoStore) FindByUsername(ctx context.Context, username string) (*auth.CredentialRecord, error) {
	var doc credentialDoc
	err := s.coll.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, auth.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	return doc.record()
}

// Create inserts a new record. Returns auth.ErrCredentialExists on a
// duplicate username.
func (s *MongoStore) Create(ctx context.Context, rec *auth.CredentialRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.coll.InsertOne(ctx, credentialDoc{
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		Role:         string(rec.Role),
		Disabled:     rec.Disabled,
		CreatedAt:    created,
	})
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrCredentialExists
	}
	if err != nil {
		return fmt.Errorf("insert user %q: %w", rec.Username, err)
	}
	return nil
}

// SetDisabled flips the disabled flag in a single-document update.
func (s *MongoStore) SetDisabled(ctx context.Context, username string, disabled bool) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"disabled": disabled}},
	)
	if err != nil {
		return fmt.Errorf("update user %q: %w", username, err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrCredentialNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.cli.Disconnect(ctx)
}
