package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, "fixed30", cfg.ScheduleCadence)
	assert.Equal(t, 3, cfg.ReminderDaysAhead)
	assert.Equal(t, 4, cfg.ReconcileWorkers)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.False(t, cfg.NotificationsEnabled())
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("SCHEDULE_CADENCE", "calendar")
	t.Setenv("RECONCILE_WORKERS", "8")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("TIMEZONE", "America/Santo_Domingo")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, "calendar", cfg.ScheduleCadence)
	assert.Equal(t, 8, cfg.ReconcileWorkers)
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, "America/Santo_Domingo", cfg.Location.String())
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"STORAGE", "mongo", "STORAGE"},
		{"SCHEDULE_CADENCE", "daily", "SCHEDULE_CADENCE"},
		{"RECONCILE_WORKERS", "zero", "RECONCILE_WORKERS"},
		{"RECONCILE_WORKERS", "0", "RECONCILE_WORKERS"},
		{"JWT_SECRET", "", "JWT_SECRET"},
		{"TIMEZONE", "Mars/Olympus", "TIMEZONE"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
