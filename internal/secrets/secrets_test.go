package secrets

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	m, err := NewManager(key)
	require.NoError(t, err)
	// Keep derivation cheap in tests.
	m.iterations = 1000
	return m
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Secret{}, &AuditLog{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestNewManager(t *testing.T) {
	_, err := NewManager("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewManager("not base64!!")
	assert.Error(t, err)

	_, err = NewManager("c2hvcnQ=") // "short"
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := newTestManager(t)

	enc, salt, fp, err := m.Encrypt("ws-1", "sk-live-123")
	require.NoError(t, err)
	assert.NotContains(t, enc, "sk-live-123")
	assert.NotEmpty(t, fp)

	plain, err := m.Decrypt("ws-1", enc, salt)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", plain)

	_, err = m.Decrypt("ws-2", enc, salt)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "another workspace derives another key")

	ok, err := m.MatchesFingerprint("ws-1", salt, fp)
	require.NoError(t, err)
	assert.True(t, ok)

	other := newTestManager(t)
	ok, err = other.MatchesFingerprint("ws-1", salt, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncryptUsesFreshSalt(t *testing.T) {
	m := newTestManager(t)
	enc1, salt1, _, err := m.Encrypt("ws", "same")
	require.NoError(t, err)
	enc2, salt2, _, err := m.Encrypt("ws", "same")
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, enc1, enc2)
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"OPENAI_API_KEY", true},
		{"A", true},
		{"X1_2", true},
		{"lower_case", false},
		{"1STARTS_WITH_DIGIT", false},
		{"_LEADING", false},
		{"HAS-DASH", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidName(tt.name), tt.name)
	}
}

func TestCategorize(t *testing.T) {
	tests := map[string]Category{
		"OPENAI_API_KEY":        CategoryAI,
		"SUPABASE_URL":          CategoryDatabase,
		"STRIPE_WEBHOOK_SECRET": CategoryPayments,
		"RESEND_API_KEY":        CategoryEmail,
		"JWT_SECRET":            CategoryAuth,
		"MAPBOX_TOKEN":          CategoryOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, Categorize(name), name)
	}
}

func TestServiceSaveAndList(t *testing.T) {
	svc := NewService(newTestDB(t), newTestManager(t), nil)
	ctx := context.Background()

	res := svc.Save(ctx, "ws", "127.0.0.1", map[string]string{
		"RESEND_API_KEY": "re_123",
		"MAPBOX_TOKEN":   "pk.abc",
		"bad-name":       "x",
		"EMPTY_KEY":      "",
	})

	assert.Equal(t, []string{"MAPBOX_TOKEN", "RESEND_API_KEY"}, res.Saved)
	assert.Equal(t, ErrInvalidSecretName.Error(), res.Errors["bad-name"])
	assert.Equal(t, ErrEmptySecretValue.Error(), res.Errors["EMPTY_KEY"])

	statuses, err := svc.List(ctx, "ws")
	require.NoError(t, err)

	byName := make(map[string]Status)
	for _, st := range statuses {
		byName[st.Name] = st
	}
	assert.True(t, byName["RESEND_API_KEY"].IsConfigured)
	assert.Equal(t, CategoryEmail, byName["RESEND_API_KEY"].Category)
	assert.True(t, byName["MAPBOX_TOKEN"].IsConfigured)
	assert.False(t, byName["OPENAI_API_KEY"].IsConfigured, "well-known secrets are listed unconfigured")

	for i := 1; i < len(statuses); i++ {
		prev, cur := statuses[i-1], statuses[i]
		assert.True(t, prev.Category < cur.Category || (prev.Category == cur.Category && prev.Name < cur.Name))
	}

	other, err := svc.List(ctx, "other-ws")
	require.NoError(t, err)
	for _, st := range other {
		assert.False(t, st.IsConfigured, st.Name)
	}

	var audits int64
	require.NoError(t, svc.db.Model(&AuditLog{}).Count(&audits).Error)
	assert.EqualValues(t, 4, audits)
}

func TestServiceSaveUpserts(t *testing.T) {
	svc := NewService(newTestDB(t), newTestManager(t), nil)
	ctx := context.Background()

	svc.Save(ctx, "ws", "", map[string]string{"STRIPE_SECRET_KEY": "sk_old"})
	svc.Save(ctx, "ws", "", map[string]string{"STRIPE_SECRET_KEY": "sk_new"})

	value, err := svc.Get(ctx, "ws", "STRIPE_SECRET_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk_new", value)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestServiceDelete(t *testing.T) {
	svc := NewService(newTestDB(t), newTestManager(t), nil)
	ctx := context.Background()
	svc.Save(ctx, "ws", "", map[string]string{"JWT_SECRET": "s3cret"})

	require.NoError(t, svc.Delete(ctx, "ws", "JWT_SECRET"))
	assert.ErrorIs(t, svc.Delete(ctx, "ws", "JWT_SECRET"), ErrSecretNotFound)

	_, err := svc.Get(ctx, "ws", "JWT_SECRET")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestRotateMasterKey(t *testing.T) {
	db := newTestDB(t)
	oldManager := newTestManager(t)
	newManager := newTestManager(t)
	ctx := context.Background()

	NewService(db, oldManager, nil).Save(ctx, "ws-a", "", map[string]string{"OPENAI_API_KEY": "sk-a"})
	NewService(db, oldManager, nil).Save(ctx, "ws-b", "", map[string]string{"RESEND_API_KEY": "re-b"})

	result, err := RotateMasterKey(db, oldManager, newManager, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalSecrets)
	assert.Equal(t, 2, result.Migrated)
	assert.Zero(t, result.Failed)

	rotated := NewService(db, newManager, nil)
	v, err := rotated.Get(ctx, "ws-a", "OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-a", v)

	again, err := RotateMasterKey(db, oldManager, newManager, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Zero(t, again.Migrated)
}

func TestRotateMasterKeyRollsBackOnWrongKey(t *testing.T) {
	db := newTestDB(t)
	realOld := newTestManager(t)
	ctx := context.Background()
	NewService(db, realOld, nil).Save(ctx, "ws", "", map[string]string{"OPENAI_API_KEY": "sk"})

	result, err := RotateMasterKey(db, newTestManager(t), newTestManager(t), nil)
	require.Error(t, err)
	assert.Equal(t, 1, result.Failed)

	v, err := NewService(db, realOld, nil).Get(ctx, "ws", "OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk", v)
}
