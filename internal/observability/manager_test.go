package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/observability"
)

func TestManager_PrometheusExposesOrderCounters(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{}
	cfg.Observability.ServiceName = "ordertrack-test"
	cfg.Observability.EnableMetrics = true
	cfg.Observability.MetricsExporter = "prometheus"
	cfg.Observability.PrometheusPath = "/metrics"

	mgr, err := observability.NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	require.True(t, mgr.MetricsEnabled())
	require.NotNil(t, mgr.MetricsHandler())

	lc.RequireStart()
	defer lc.RequireStop()

	counter, err := otel.Meter("test").Int64Counter("orders.created")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orders_created_total")
}

func TestManager_Disabled(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	mgr, err := observability.NewManager(lc, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}
