package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"schedlog/internal/db"
	"schedlog/internal/identity"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB returns a migrated sqlite database living in t.TempDir().
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.Connect("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open sqlite")
	require.NoError(t, db.AutoMigrateAndIndexes(gdb), "failed to migrate")

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

const (
	FederatedIssuer   = "https://issuer.test"
	FederatedAudience = "schedlog"
	FederatedSecret   = "federated-secret"
)

// NewAuthority builds an identity authority over gdb with federation enabled.
func NewAuthority(gdb *gorm.DB) *identity.Authority {
	return &identity.Authority{
		DB:         gdb,
		JWT:        identity.NewJWT("test-secret"),
		Federation: identity.NewFederatedVerifier(FederatedIssuer, FederatedAudience, FederatedSecret),
		DurableTTL: 7 * 24 * time.Hour,
		ScopedTTL:  time.Hour,
	}
}
