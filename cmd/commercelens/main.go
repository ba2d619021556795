package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/wolfsonlabs/commercelens/internal/clock"
	"github.com/wolfsonlabs/commercelens/internal/config"
	"github.com/wolfsonlabs/commercelens/internal/observability"
	"github.com/wolfsonlabs/commercelens/internal/refresh"
	"github.com/wolfsonlabs/commercelens/internal/scheduler"
	"github.com/wolfsonlabs/commercelens/internal/seed"
	"github.com/wolfsonlabs/commercelens/internal/server"
	"github.com/wolfsonlabs/commercelens/internal/warehouse"
	"github.com/wolfsonlabs/commercelens/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "commercelens",
		Short:   "Batch analytics engine for the commerce warehouse",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newSeedCmd(), newRefreshCmd(), newServeCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the derived-table schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo dimensions and orders into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve measures and derived tables over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Migrate, run one refresh cycle, then serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			if err := runRefresh(); err != nil {
				return err
			}
			runServe()
			return nil
		},
	}
}

func baseModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake, newClock),
		db.Module,
		warehouse.Module,
	)
}

func runMigrate() error {
	app := fx.New(
		baseModules(),
		fx.Invoke(func(repo warehouse.Repository) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			return repo.Migrate(ctx)
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runSeed() error {
	if err := runMigrate(); err != nil {
		return err
	}
	app := fx.New(
		baseModules(),
		fx.Invoke(func(gdb *gorm.DB) error {
			return seed.EnsureDemoData(gdb)
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runRefresh() error {
	app := fx.New(
		baseModules(),
		refresh.Module,
		fx.Invoke(func(svc *refresh.Service) error {
			_, err := svc.Run(context.Background())
			return err
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(
		baseModules(),
		refresh.Module,
		server.Module,
		fx.Provide(func(s *server.Server) scheduler.Reloader { return s }),
		scheduler.Module,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	_ = app.Stop(stopCtx)
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newClock() clock.Clock {
	return clock.SystemClock{}
}

func readVersionFromEnv() string {
	if v := os.Getenv("COMMERCELENS_VERSION"); v != "" {
		return v
	}
	return "dev"
}
