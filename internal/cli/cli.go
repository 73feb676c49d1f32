package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/ordertrack/internal/app"
	"github.com/Additional-Code/ordertrack/internal/dto"
	"github.com/Additional-Code/ordertrack/internal/entity"
	"github.com/Additional-Code/ordertrack/internal/migration"
	"github.com/Additional-Code/ordertrack/internal/seeder"
	service "github.com/Additional-Code/ordertrack/internal/service/order"
)

// NewRootCommand builds the root ordertrack CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ordertrack",
		Short:         "Order lifecycle service and operator toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newOrderCmd(app.Core))

	return root
}

// Execute runs the ordertrack CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP and gRPC service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Module)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Migrate, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Migrate, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo orders through the lifecycle engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Seed, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := seed.Orders(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "seed data applied")
				return nil
			})
		},
	}
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the order event audit worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), app.Worker)
		},
	})
	return cmd
}

// newOrderCmd exposes the lifecycle commands to operators. graph supplies the
// order services.
func newOrderCmd(graph fx.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and drive individual orders",
	}

	withServices := func(cmd *cobra.Command, fn func(context.Context, *service.Service, *service.QueryService) (*entity.Order, error)) error {
		var (
			svc   *service.Service
			query *service.QueryService
		)
		opts := fx.Options(graph, fx.Populate(&svc, &query))
		return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
			order, err := fn(ctx, svc, query)
			if err != nil {
				return err
			}
			return printOrder(cmd, order)
		})
	}

	getCmd := &cobra.Command{
		Use:   "get <order_id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *service.Service, q *service.QueryService) (*entity.Order, error) {
				return q.Get(ctx, args[0])
			})
		},
	}

	transitionCmd := &cobra.Command{
		Use:   "transition <order_id> <status>",
		Short: "Move an order one step forward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			return withServices(cmd, func(ctx context.Context, s *service.Service, _ *service.QueryService) (*entity.Order, error) {
				return s.Transition(ctx, args[0], args[1], by)
			})
		},
	}
	transitionCmd.Flags().String("by", service.DefaultActor, "Actor recorded in the order history")

	cancelCmd := &cobra.Command{
		Use:   "cancel <order_id>",
		Short: "Cancel a non-terminal order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by, _ := cmd.Flags().GetString("by")
			reason, _ := cmd.Flags().GetString("reason")
			return withServices(cmd, func(ctx context.Context, s *service.Service, _ *service.QueryService) (*entity.Order, error) {
				return s.Cancel(ctx, args[0], by, reason)
			})
		},
	}
	cancelCmd.Flags().String("by", service.DefaultActor, "Actor recorded in the order history")
	cancelCmd.Flags().String("reason", "", "Cancellation reason")

	cmd.AddCommand(getCmd, transitionCmd, cancelCmd)
	return cmd
}

func printOrder(cmd *cobra.Command, order *entity.Order) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(dto.NewOrderResponse(order))
}

func runUntilDone(ctx context.Context, opts fx.Option) error {
	application := fx.New(opts)
	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return application.Stop(stopCtx)
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
