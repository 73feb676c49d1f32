package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/cache"
	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/database"
	"github.com/Additional-Code/ordertrack/internal/event"
	"github.com/Additional-Code/ordertrack/internal/logger"
	"github.com/Additional-Code/ordertrack/internal/messaging"
	"github.com/Additional-Code/ordertrack/internal/migration"
	"github.com/Additional-Code/ordertrack/internal/observability"
	repositoryorder "github.com/Additional-Code/ordertrack/internal/repository/order"
	"github.com/Additional-Code/ordertrack/internal/seeder"
	grpcserver "github.com/Additional-Code/ordertrack/internal/server/grpc"
	httpserver "github.com/Additional-Code/ordertrack/internal/server/http"
	serviceorder "github.com/Additional-Code/ordertrack/internal/service/order"
	transporthttp "github.com/Additional-Code/ordertrack/internal/transport/http"
	"github.com/Additional-Code/ordertrack/internal/worker"
	workerorder "github.com/Additional-Code/ordertrack/internal/worker/order"
)

// Infra provides configuration, logging and storage connections.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	database.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	cache.Module,
	messaging.Module,
	observability.Module,
	event.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Migrate runs schema migrations only.
var Migrate = fx.Options(
	Infra,
	migration.Module,
)

// Seed creates demo data through the lifecycle engine.
var Seed = fx.Options(
	Core,
	seeder.Module,
)

// Module is the default application wiring (HTTP and gRPC).
var Module = HTTP
