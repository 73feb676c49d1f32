package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/ordertrack/internal/config"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, "orders.service", cfg.Orders.EventSource)
	assert.Equal(t, 24*time.Hour, cfg.Orders.IdempotencyTTL)
	assert.Equal(t, cfg.Cache.DefaultTTL, cfg.Orders.CacheTTL)
	assert.Equal(t, "orders.events", cfg.Messaging.Kafka.Topic)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("ORDERS_EVENT_SOURCE", "  kitchen.orders ")
	t.Setenv("ORDERS_CACHE_TTL", "30s")
	t.Setenv("ORDERS_IDEMPOTENCY_TTL", "1h")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("OBS_PROMETHEUS_PATH", "prom")

	cfg, err := config.New()
	require.NoError(t, err)

	assert.Equal(t, "kitchen.orders", cfg.Orders.EventSource)
	assert.Equal(t, 30*time.Second, cfg.Orders.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Orders.IdempotencyTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Messaging.Kafka.Brokers)
	assert.Equal(t, "noop", cfg.Cache.Driver)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
	assert.Equal(t, "/prom", cfg.Observability.PrometheusPath)
}

func TestNew_DurationAsSeconds(t *testing.T) {
	t.Setenv("ORDERS_CACHE_TTL", "300")
	t.Setenv("ORDERS_IDEMPOTENCY_TTL", "not-a-duration")

	cfg, err := config.New()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Orders.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Orders.IdempotencyTTL)
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad http port", map[string]string{"HTTP_PORT": "0"}, "invalid HTTP port"},
		{"bad cache driver", map[string]string{"CACHE_DRIVER": "memcached"}, "unsupported cache driver"},
		{"bad messaging driver", map[string]string{"MESSAGING_DRIVER": "nats"}, "unsupported messaging driver"},
		{"bad db driver", map[string]string{"DB_DRIVER": "oracle"}, "unsupported database driver"},
		{"empty writer dsn", map[string]string{"DB_WRITER_DSN": ""}, "missing DB_WRITER_DSN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
