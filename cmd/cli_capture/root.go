package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentio/internal/config"
	"sentio/internal/db"
	"sentio/internal/repository"
)

// commandContext carga config, logger y repositorio una sola vez por ejecucion.
type commandContext struct {
	cfg    *config.Config
	logger *zap.Logger
	debug  bool
}

func (c *commandContext) ensure() error {
	if c.cfg != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg
	if c.debug {
		c.logger, _ = zap.NewDevelopment()
	} else {
		c.logger = zap.NewNop()
	}
	return nil
}

// withEvents abre Postgres si DATABASE_URL esta configurado; si no, usa memoria.
func (c *commandContext) withEvents(ctx context.Context, fn func(repository.EventRepository) error) error {
	if c.cfg.DatabaseURL == "" {
		return fn(repository.NewMemoryEventRepository())
	}
	pool, err := db.NewPool(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	return fn(repository.NewPgEventRepository(pool))
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "cli_capture",
		Short:         "Run emotion capture loops from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.ensure()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVar(&ctx.debug, "debug", false, "Enable development logging")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newDashboardCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	return rootCmd
}
