package config_test

import (
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("EVENT_BROKER", "memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.StorageMemory, cfg.StorageDriver)
	assert.Equal(t, config.BrokerMemory, cfg.EventBroker)
	assert.Equal(t, 5*time.Second, cfg.SagaStepTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("PGSQL_URL", "postgres://u:p@localhost:5432/bank")
	t.Setenv("EVENT_BROKER", "memory")
	t.Setenv("SAGA_STEP_TIMEOUT", "250ms")
	t.Setenv("COMPENSATION_MAX_RETRIES", "9")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/bank", cfg.DatabaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.SagaStepTimeout)
	assert.Equal(t, 9, cfg.CompensationMaxRetries)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORAGE_DRIVER": "postgres", "PGSQL_URL": "", "EVENT_BROKER": "memory"}},
		{"unknown storage", map[string]string{"STORAGE_DRIVER": "sqlite", "EVENT_BROKER": "memory"}},
		{"unknown broker", map[string]string{"STORAGE_DRIVER": "memory", "EVENT_BROKER": "kafka"}},
		{"default secret in production", map[string]string{"STORAGE_DRIVER": "memory", "EVENT_BROKER": "memory", "IS_PRODUCTION": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}
