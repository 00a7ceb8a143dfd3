package secrets

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RotationResult tracks the outcome of a key rotation.
type RotationResult struct {
	TotalSecrets    int       `json:"total_secrets"`
	Migrated        int       `json:"migrated"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
	Errors          []string  `json:"errors,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// maxRotationFailureRatio rolls the rotation back when exceeded.
const maxRotationFailureRatio = 0.1

// RotateMasterKey re-encrypts every secret from oldManager's key to
// newManager's key in one transaction. Secrets already sealed with the new
// key are skipped, so an interrupted rotation can be re-run.
func RotateMasterKey(db *gorm.DB, oldManager, newManager *Manager, log *zap.Logger) (*RotationResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	result := &RotationResult{StartedAt: time.Now()}

	var all []Secret
	if err := db.Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}
	result.TotalSecrets = len(all)
	log.Info("key rotation started", zap.Int("secrets", result.TotalSecrets))

	txErr := db.Transaction(func(tx *gorm.DB) error {
		for _, s := range all {
			if current, err := newManager.MatchesFingerprint(s.WorkspaceID, s.Salt, s.KeyFingerprint); err == nil && current {
				result.Skipped++
				continue
			}

			plaintext, err := oldManager.Decrypt(s.WorkspaceID, s.EncryptedValue, s.Salt)
			if err != nil {
				result.fail(log, fmt.Sprintf("secret %d (%s/%s): decrypt failed: %v", s.ID, s.WorkspaceID, s.Name, err))
				continue
			}

			encrypted, salt, fingerprint, err := newManager.Encrypt(s.WorkspaceID, plaintext)
			if err != nil {
				result.fail(log, fmt.Sprintf("secret %d (%s/%s): re-encrypt failed: %v", s.ID, s.WorkspaceID, s.Name, err))
				continue
			}

			if err := tx.Model(&Secret{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
				"encrypted_value": encrypted,
				"salt":            salt,
				"key_fingerprint": fingerprint,
				"updated_at":      time.Now(),
			}).Error; err != nil {
				result.fail(log, fmt.Sprintf("secret %d: update failed: %v", s.ID, err))
				continue
			}
			result.Migrated++
		}

		if result.TotalSecrets > 0 && float64(result.Failed)/float64(result.TotalSecrets) > maxRotationFailureRatio {
			return fmt.Errorf("too many failures (%d/%d)", result.Failed, result.TotalSecrets)
		}
		return nil
	})

	result.CompletedAt = time.Now()
	result.DurationSeconds = result.CompletedAt.Sub(result.StartedAt).Seconds()

	if txErr != nil {
		return result, fmt.Errorf("key rotation rolled back: %w", txErr)
	}

	log.Info("key rotation complete",
		zap.Int("migrated", result.Migrated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Float64("duration_seconds", result.DurationSeconds))
	return result, nil
}

func (r *RotationResult) fail(log *zap.Logger, msg string) {
	r.Errors = append(r.Errors, msg)
	r.Failed++
	log.Warn("key rotation", zap.String("error", msg))
}
