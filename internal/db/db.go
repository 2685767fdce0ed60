package db

import (
	"fmt"
	"strings"

	"schedlog/internal/identity"
	"schedlog/internal/jobs"
	"schedlog/internal/store"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the store database. Postgres goes through lib/pq; sqlite is
// used by the local CLI and by tests.
func Connect(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	switch driver {
	case "postgres":
		return gorm.Open(postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), cfg)
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(sqliteDSN(dsn)), cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// single writer avoids SQLITE_BUSY under concurrent transactions
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// sqliteDSN makes every transaction BEGIN IMMEDIATE. Deferred transactions
// from two processes can both read and then fail the lock upgrade with
// "database is locked", which busy_timeout does not retry.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&store.Account{},
		&store.ScheduleLog{},
		&store.ActivityRecord{},
		&identity.Credential{},
		&identity.IdentitySession{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	// Password accounts are unique by email; federated ones may lack one.
	stmts := []string{
		`create unique index if not exists uq_credentials_email on credentials(email) where email <> '';`,
		`create unique index if not exists uq_credentials_subject on credentials(federated_subject) where federated_subject <> '';`,
		`create index if not exists idx_sessions_uid on identity_sessions(uid);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
