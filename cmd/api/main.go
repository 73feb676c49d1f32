package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/app"
	"github.com/Additional-Code/ordertrack/internal/migration"
)

// Container entrypoint: applies pending migrations, then serves HTTP and gRPC.
func main() {
	fx.New(
		app.Module,
		migration.Module,
		fx.Invoke(func(lc fx.Lifecycle, mig *migration.Migrator) {
			lc.Append(fx.Hook{OnStart: mig.Up})
		}),
	).Run()
}
