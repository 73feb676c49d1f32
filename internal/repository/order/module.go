package order

import "go.uber.org/fx"

// Module provides the bun-backed order store to Fx.
var Module = fx.Provide(NewRepository)
