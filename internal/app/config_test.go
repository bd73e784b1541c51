package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "postgres with url",
			cfg:  Config{Storage: StorageConfig{Driver: DriverPostgres, DatabaseURL: "postgres://localhost/rental"}},
		},
		{
			name:    "postgres without url",
			cfg:     Config{Storage: StorageConfig{Driver: DriverPostgres}},
			wantErr: "database URL is required",
		},
		{
			name: "bolt",
			cfg:  Config{Storage: StorageConfig{Driver: DriverBolt, BoltPath: "rental.db"}},
		},
		{
			name:    "bolt without path",
			cfg:     Config{Storage: StorageConfig{Driver: DriverBolt}},
			wantErr: "bolt path is required",
		},
		{
			name:    "unknown driver",
			cfg:     Config{Storage: StorageConfig{Driver: "sqlite"}},
			wantErr: `unknown storage driver "sqlite"`,
		},
		{
			name: "jobs without schedule",
			cfg: Config{
				Storage: StorageConfig{Driver: DriverBolt, BoltPath: "rental.db"},
				Jobs:    JobsConfig{Enabled: true},
			},
			wantErr: "refresh schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	// Explicit settings win.
	cfg = Config{Addr: "127.0.0.1:7000", Storage: StorageConfig{DatabaseURL: "postgres://explicit/db"}}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
