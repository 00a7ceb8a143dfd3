package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"heftcoder/internal/metrics"
)

// Service persists encrypted secrets with gorm.
type Service struct {
	db      *gorm.DB
	manager *Manager
	log     *zap.Logger
}

// NewService creates a Service.
func NewService(db *gorm.DB, manager *Manager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, manager: manager, log: log.Named("secrets")}
}

// SaveResult reports a batch save. Errors maps names to what went wrong.
type SaveResult struct {
	Saved  []string
	Errors map[string]string
}

// List returns the status of every stored and well-known secret.
func (s *Service) List(ctx context.Context, workspace string) ([]Status, error) {
	var stored []Secret
	if err := s.db.WithContext(ctx).
		Select("name", "category").
		Where("workspace_id = ?", workspace).
		Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	return mergeStatuses(stored), nil
}

// Save encrypts and upserts every valid entry. Invalid names and empty values
// are reported per name; the rest are still saved.
func (s *Service) Save(ctx context.Context, workspace, ip string, values map[string]string) SaveResult {
	res := SaveResult{Errors: make(map[string]string)}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.saveOne(ctx, workspace, name, values[name]); err != nil {
			res.Errors[name] = err.Error()
			s.audit(ctx, workspace, name, "save", ip, err)
			continue
		}
		res.Saved = append(res.Saved, name)
		s.audit(ctx, workspace, name, "save", ip, nil)
	}

	if len(res.Saved) > 0 {
		s.log.Info("secrets saved", zap.String("workspace", workspace), zap.Strings("names", res.Saved))
	}
	return res
}

func (s *Service) saveOne(ctx context.Context, workspace, name, value string) error {
	if !ValidName(name) {
		return ErrInvalidSecretName
	}
	if value == "" {
		return ErrEmptySecretValue
	}

	encrypted, salt, fingerprint, err := s.manager.Encrypt(workspace, value)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	now := time.Now()
	secret := Secret{
		WorkspaceID:    workspace,
		Name:           name,
		Category:       Categorize(name),
		EncryptedValue: encrypted,
		Salt:           salt,
		KeyFingerprint: fingerprint,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"encrypted_value", "salt", "key_fingerprint", "category", "updated_at"}),
	}).Create(&secret).Error
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// Get decrypts one secret.
func (s *Service) Get(ctx context.Context, workspace, name string) (string, error) {
	var secret Secret
	err := s.db.WithContext(ctx).Where("workspace_id = ? AND name = ?", workspace, name).First(&secret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	return s.manager.Decrypt(workspace, secret.EncryptedValue, secret.Salt)
}

// Delete removes a secret.
func (s *Service) Delete(ctx context.Context, workspace, name string) error {
	res := s.db.WithContext(ctx).Where("workspace_id = ? AND name = ?", workspace, name).Delete(&Secret{})
	if res.Error != nil {
		return fmt.Errorf("delete secret: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSecretNotFound
	}
	return nil
}

// Count returns the number of stored secrets across workspaces.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Secret{}).Count(&n).Error
	if err == nil {
		metrics.Get().SecretsConfigured.Set(float64(n))
	}
	return n, err
}

func (s *Service) audit(ctx context.Context, workspace, name, action, ip string, opErr error) {
	entry := AuditLog{
		WorkspaceID: workspace,
		SecretName:  name,
		Action:      action,
		IPAddress:   ip,
		Success:     opErr == nil,
		CreatedAt:   time.Now(),
	}
	if opErr != nil {
		entry.ErrorMsg = opErr.Error()
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("failed to write secret audit log", zap.Error(err))
	}
}
