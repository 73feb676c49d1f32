package order

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/event"
	repo "github.com/Additional-Code/ordertrack/internal/repository/order"
)

// Module provides the lifecycle and query services to Fx.
var Module = fx.Options(
	fx.Provide(
		func(r *repo.Repository) Store { return r },
		func(p *event.Publisher) EventPublisher { return p },
		NewService,
		NewQueryService,
	),
)
