package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"mysql_unsupported", "mysql", "", true},
		{"sqlite_unsupported", "sqlite", "", true},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{
		DatabaseType: DatabaseTypePostgres,
		DatabaseURL:  "",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestGetAvailableMigrations_EmbeddedFiles(t *testing.T) {
	m := &DefaultMigrator{config: &Config{DatabaseType: DatabaseTypePostgres}}
	migrations, err := m.getAvailableMigrations()
	assert.NoError(t, err)
	assert.NotEmpty(t, migrations, "the embedded postgres migration set must not be empty")

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].version, migrations[i-1].version)
	}
}
