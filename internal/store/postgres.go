package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"gorm.io/gorm"
)

type credentialRow struct {
	Username     string `gorm:"primaryKey;size:128"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;size:16"`
	Disabled     bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

func (credentialRow) TableName() string { return "users" }

type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore migrates the users table and returns the store.
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&credentialRow{}); err != nil {
		return nil, fmt.Errorf("migrate users table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*auth.CredentialRecord, error) {
	var row credentialRow
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	role, err := auth.ParseRole(row.Role)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return &auth.CredentialRecord{
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Role:         role,
		Disabled:     row.Disabled,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *auth.CredentialRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	row := credentialRow{
		Username:     rec.Username,
		PasswordHash: rec.PasswordHash,
		Role:         string(rec.Role),
		Disabled:     rec.Disabled,
		CreatedAt:    rec.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return auth.ErrCredentialExists
	}
	if err != nil {
		return fmt.Errorf("insert user %q: %w", rec.Username, err)
	}
	return nil
}

func (s *PostgresStore) SetDisabled(ctx context.Context, username string, disabled bool) error {
	res := s.db.WithContext(ctx).
		Model(&credentialRow{}).
		Where("username = ?", username).
		Update("disabled", disabled)
	if res.Error != nil {
		return fmt.Errorf("update user %q: %w", username, res.Error)
	}
	if res.RowsAffected == 0 {
		return auth.ErrCredentialNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
