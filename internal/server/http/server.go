package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
	"github.com/Additional-Code/ordertrack/internal/database"
	"github.com/Additional-Code/ordertrack/internal/observability"
	"github.com/Additional-Code/ordertrack/internal/presentation/http/response"
	"github.com/Additional-Code/ordertrack/pkg/errorbank"
)

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// Params defines dependencies for the Echo router.
type Params struct {
	fx.In

	Config        config.Config
	Observability *observability.Manager `optional:"true"`
	Database      *database.Connections  `optional:"true"`
	Logger        *zap.Logger
}

// NewEcho configures the Echo router with request logging, recovery and tracing.
func NewEcho(p Params) *echo.Echo {
	logger := p.Logger.With(zap.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var appErr *errorbank.AppError
		if errors.As(err, &appErr) {
			_ = response.New(c).WithError(appErr).Build()
			return
		}
		logger.Warn("http request failed", zap.String("path", c.Path()), zap.Error(err))
		c.Echo().DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	if p.Observability != nil && p.Observability.TracingEnabled() {
		e.Use(otelecho.Middleware(p.Config.Observability.ServiceName))
	}

	e.GET("/health", func(c echo.Context) error {
		if p.Database == nil {
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := p.Database.Writer.PingContext(ctx); err != nil {
			logger.Warn("health check: database unreachable", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
	})

	if p.Observability != nil && p.Observability.MetricsEnabled() && p.Observability.MetricsHandler() != nil {
		e.GET(p.Config.Observability.PrometheusPath, echo.WrapHandler(p.Observability.MetricsHandler()))
	}

	return e
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
