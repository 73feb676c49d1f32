package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/app"
	"github.com/Additional-Code/ordertrack/internal/migration"
	"github.com/Additional-Code/ordertrack/internal/seeder"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
	transport "github.com/Additional-Code/ordertrack/internal/transport/http/order"
	"github.com/Additional-Code/ordertrack/internal/worker"
)

func TestGraphs(t *testing.T) {
	tests := []struct {
		name string
		opts fx.Option
	}{
		{"http", fx.Options(app.HTTP, fx.Invoke(func(*service.Service, *service.QueryService, *transport.Handler) {}))},
		{"worker", fx.Options(app.Worker, fx.Invoke(func(*worker.Engine) {}))},
		{"migrate", fx.Options(app.Migrate, fx.Invoke(func(*migration.Migrator) {}))},
		{"seed", fx.Options(app.Seed, fx.Invoke(func(*seeder.Seeder) {}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, fx.ValidateApp(tt.opts))
		})
	}
}
