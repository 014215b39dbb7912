package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "catalog.yaml", cfg.CatalogFile)
				assert.Equal(t, 3, cfg.Router.MaxChainLength)
				assert.Equal(t, time.Hour, cfg.Router.CacheTTL)
				assert.Equal(t, 3, cfg.Router.CircuitFailureThreshold)
				assert.Equal(t, 60*time.Second, cfg.Router.CircuitCooldown)
				assert.Equal(t, 10*time.Minute, cfg.Router.CircuitCooldownCap)
				assert.Equal(t, 1, cfg.Router.PerModelRetries)
				assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.Router.BackoffSchedule)
				assert.True(t, cfg.Observability.MetricsEnabled)
			},
		},
		{
			name: "production configuration",
			envVars: map[string]string{
				"ENVIRONMENT":             "production",
				"SERVER_PORT":             "9000",
				"ROUTER_MAX_CHAIN_LENGTH": "5",
				"ROUTER_CACHE_TTL":        "30m",
				"ROUTER_BACKOFF_SCHEDULE": "500ms,1s",
				"OPENAI_API_KEY":          "sk-xxxxx",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 5, cfg.Router.MaxChainLength)
				assert.Equal(t, 30*time.Minute, cfg.Router.CacheTTL)
				assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, cfg.Router.BackoffSchedule)
				assert.NotEmpty(t, cfg.Providers.OpenAI.APIKey)
			},
		},
		{
			name: "production without any provider key",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
			},
			wantErr: true,
		},
		{
			name: "invalid port",
			envVars: map[string]string{
				"SERVER_PORT": "70000",
			},
			wantErr: true,
		},
		{
			name: "cooldown cap below cooldown",
			envVars: map[string]string{
				"ROUTER_CIRCUIT_COOLDOWN":     "5m",
				"ROUTER_CIRCUIT_COOLDOWN_CAP": "1m",
			},
			wantErr: true,
		},
		{
			name: "invalid chain length",
			envVars: map[string]string{
				"ROUTER_MAX_CHAIN_LENGTH": "0",
			},
			wantErr: true,
		},
		{
			name: "malformed backoff schedule falls back to default",
			envVars: map[string]string{
				"ROUTER_BACKOFF_SCHEDULE": "1s,nonsense",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.Router.BackoffSchedule)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9090}
	assert.Equal(t, "127.0.0.1:9090", cfg.Address())
}
