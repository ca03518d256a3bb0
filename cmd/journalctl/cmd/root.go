package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ksred/klear-journal/internal/config"
	"github.com/ksred/klear-journal/internal/database"
	"github.com/ksred/klear-journal/internal/server"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	configPath string
	dsn        string
	tz         string
}

// services is the journal wired against one database
type services struct {
	*server.App
	cfg *config.Config
	db  *gorm.DB
}

// New builds the journalctl command tree
func New() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "journalctl",
		Short: "Administer a Klear trading journal database",
		Long: `journalctl works directly against the journal database used by the API server.

It provides tools for:
  - Creating user accounts
  - Importing and exporting trades as CSV
  - Printing PnL summaries and calendar months

Examples:
  journalctl useradd alice --password s3cret-pass
  journalctl import alice trades.csv --dry-run
  journalctl summary alice --symbol AAPL`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", ".", "directory containing config.yml")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database DSN (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.tz, "tz", "", "IANA time zone for dates (default: user setting, then config)")

	cmd.AddCommand(
		newUserAddCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newSummaryCmd(opts),
		newCalendarCmd(opts),
		newPurgeKeysCmd(opts),
	)

	return cmd
}

func (o *rootOptions) open() (*services, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	return &services{App: server.NewApp(cfg, db), cfg: cfg, db: db}, nil
}

// close releases the connection pool opened by open
func (s *services) close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// user resolves a username to its account
func (s *services) user(ctx context.Context, username string) (*types.User, error) {
	user, err := s.Auth.UserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return user, nil
}

// location picks the --tz flag, then the user's setting, then the configured default
func (s *services) location(ctx context.Context, flag string, userID uint) (*time.Location, error) {
	if flag != "" {
		loc, err := time.LoadLocation(flag)
		if err != nil {
			return nil, fmt.Errorf("tz: %w", err)
		}
		return loc, nil
	}
	if tz, err := s.Journal.Timezone(ctx, userID); err == nil && tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc, nil
		}
	}
	return s.cfg.Location(), nil
}
