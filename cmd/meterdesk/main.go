package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m3rciful/meterdesk/core/bootstrap"
	"github.com/m3rciful/meterdesk/core/buildinfo"
	corecmd "github.com/m3rciful/meterdesk/core/cmd"
	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/app"
	"github.com/m3rciful/meterdesk/internal/config"
	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/fieldauth"
	"github.com/m3rciful/meterdesk/internal/seed"
	"github.com/m3rciful/meterdesk/migrations"
)

const (
	configEnvVar      = "METERDESK_CONFIG"
	defaultConfigPath = "config.yaml"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "meterdesk",
	Short: "Meter reading and seal appointment bots",
	Long: `meterdesk runs the subscriber and controller Telegram bots and the
WhatsApp webhook on top of one conversation engine.

The config file is taken from --config, then $` + configEnvVar + `, then ./` + defaultConfigPath + `.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate, seed and run every enabled channel",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load areas, controllers and registry meters from a fixture file",
	Long: `Upserts reference data. Running it twice is harmless.

The fixture file defaults to seed.file from the config.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the bcrypt hash of a controller password",
	Long:  `Reads the password from the argument or, when omitted, from the first line of stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashPassword,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "fixture file (overrides seed.file)")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, hashPasswordCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(ctx context.Context, c corecmd.ConfigCarrier) (corecmd.App, error) {
			cfg := c.(*config.Config)
			s, err := seeders(cfg, cfg.Seed.File)
			if err != nil {
				return nil, err
			}
			opts, err := bootstrapOptions(cfg, s)
			if err != nil {
				return nil, err
			}
			res, err := bootstrap.Run(ctx, opts)
			if err != nil {
				return nil, err
			}
			return app.New(cfg, res.DB)
		},
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runOnce(cmd.Context(), cfg, nil)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	file := seedFile
	if file == "" {
		file = cfg.Seed.File
	}
	if file == "" {
		return errors.New("no fixture file: pass --file or set seed.file")
	}
	s, err := seeders(cfg, file)
	if err != nil {
		return err
	}
	return runOnce(cmd.Context(), cfg, s)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hash, err := fieldauth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func loadConfig() (*config.Config, error) {
	path, err := corecmd.ResolveConfigPath(configPath, configEnvVar, defaultConfigPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// runOnce bootstraps the database with the given seeders and closes it.
func runOnce(ctx context.Context, cfg *config.Config, s []bootstrap.Seeder) error {
	opts, err := bootstrapOptions(cfg, s)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()
	res, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return err
	}
	return res.DB.Close()
}

func bootstrapOptions(cfg *config.Config, s []bootstrap.Seeder) (bootstrap.Options, error) {
	src, err := migrations.For(cfg.Database.Driver)
	if err != nil {
		return bootstrap.Options{}, err
	}
	return bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: src,
		Seeders:    s,
	}, nil
}

func seeders(cfg *config.Config, file string) ([]bootstrap.Seeder, error) {
	if file == "" {
		return nil, nil
	}
	f, err := seed.Load(file)
	if err != nil {
		return nil, err
	}
	clock := domain.SystemClock{Location: cfg.Locale.Location()}
	return []bootstrap.Seeder{f.Seeder(clock.Now)}, nil
}
