package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/database"
)

//go:embed sql/*/*.sql
var migrations embed.FS

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// goose keeps dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Migrator wraps goose operations.
type Migrator struct {
	db      *bun.DB
	dialect string
	logger  *zap.Logger
}

// New constructs a goose-backed migrator for the writer connection.
func New(conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(conns.Driver)
	if err != nil {
		return nil, err
	}

	return &Migrator{
		db:      conns.Writer,
		dialect: dialect,
		logger:  logger,
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(func(dir string) error {
		if err := goose.UpContext(ctx, m.db.DB, dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to apply")

				return nil
			}
			return err
		}

		m.logger.Info("migrations applied", zap.String("dialect", m.dialect))

		return nil
	})
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	return m.run(func(dir string) error {
		if all {
			if err := goose.DownToContext(ctx, m.db.DB, dir, 0); err != nil {
				if isNoMigrationErr(err) {
					m.logger.Info("no migrations to rollback")

					return nil
				}
				return err
			}
			m.logger.Info("migrations rolled back", zap.String("mode", "all"))

			return nil
		}

		if steps <= 0 {
			steps = 1
		}

		for i := 0; i < steps; i++ {
			if err := goose.DownContext(ctx, m.db.DB, dir); err != nil {
				if isNoMigrationErr(err) {
					m.logger.Info("no migrations to rollback")

					return nil
				}
				return err
			}
		}

		m.logger.Info("migrations rolled back", zap.Int("steps", steps))

		return nil
	})
}

func (m *Migrator) run(fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	return fn(path.Join("sql", m.dialect))
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "postgres", "pg":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
