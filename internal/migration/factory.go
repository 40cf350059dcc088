package migration

import (
	"fmt"

	"github.com/nullroute-dev/llmgateway/internal/gwconfig"
)

// NewMigratorFromConfig creates a new migrator from the gateway's config.
func NewMigratorFromConfig(cfg *gwconfig.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig creates a new migrator from database
// configuration. Unlike the donor's host/port/name/user/password fields,
// gwconfig.DatabaseConfig carries a ready-made DSN (spec §6.6), so no URL
// assembly is needed here.
func NewMigratorFromDatabaseConfig(dbCfg gwconfig.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	migCfg := &Config{
		DatabaseType: dbType,
		DatabaseURL:  dbCfg.DSN,
		TableName:    "schema_migrations",
	}

	return NewMigrator(migCfg)
}

// NewMigratorFromURL creates a new migrator from a database URL.
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
