package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/config"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "workbooks",
		Short:        "Compliance workbook and submission bundle service",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newCatalogCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate needs the postgres driver, got %q", cfg.Database.Driver)
			}

			db, err := database.New(cmd.Context(), databaseConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Str("database", cfg.Database.Database).Msg("Schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the seed catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if section == "" {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SECTION\tPARTS\tROWS")
				for _, id := range workbook.AllSections() {
					sec, _ := workbook.Catalog(id)
					fmt.Fprintf(tw, "%s\t%d\t%d\n", id, len(sec.Parts), sec.RowCount())
				}
				return tw.Flush()
			}

			sec, ok := workbook.Catalog(workbook.SectionID(section))
			if !ok {
				return fmt.Errorf("unknown section %q", section)
			}
			for _, p := range sec.Parts {
				fmt.Fprintf(out, "%s  %s\n", p.Code, p.Title)
				for _, r := range sec.Rows {
					if r.Part == p.Code {
						fmt.Fprintf(out, "    %-8s %s\n", r.Code, r.Text)
					}
				}
			}
			fmt.Fprintf(out, "%d parts, %d rows (%d blank)\n", len(sec.Parts), sec.RowCount(), sec.BlankRows)
			return nil
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "section id, e.g. GEL or Equipment")
	return cmd
}

// setup loads configuration and builds the logger.
func setup(configPath string) (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
	return cfg, log, nil
}

func databaseConfig(cfg config.Config) database.Config {
	return database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	}
}
