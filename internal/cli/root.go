package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitkeep/fitdb/internal/config"
	"github.com/fitkeep/fitdb/internal/logging"
	"github.com/fitkeep/fitdb/journal"
	"github.com/fitkeep/fitdb/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	Backend    string
	Journal    string
	Verbose    bool
}

// NewRootCommand creates the root command for the fitdb admin CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fitdb",
		Short: "fitdb - storage administration for the fitness tracker",
		Long:  "Inspect, seed and maintain a fitdb database.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend: bolt|leveldb|memory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "purge journal directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every database operation")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewDeleteUserCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

func (opts *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if opts.DBPath != "" {
		cfg.Database.Path = opts.DBPath
	}
	if opts.Backend != "" {
		cfg.Database.Backend = opts.Backend
	}
	if opts.Journal != "" {
		cfg.Database.PurgeJournal = opts.Journal
	}
	if opts.Verbose {
		cfg.Database.Verbose = true
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

// withStore opens the store described by the flags and config, runs f and
// closes everything afterwards.
func withStore(opts *RootOptions, f func(s *model.Store, logger *zap.Logger) error) (err error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	dbopt, err := cfg.Options(logger)
	if err != nil {
		return err
	}
	if dir := cfg.Database.PurgeJournal; dir != "" {
		j, jerr := journal.Open(dir, journalOptions(logger))
		if jerr != nil {
			return fmt.Errorf("failed to open purge journal: %w", jerr)
		}
		defer func() {
			if cerr := j.Close(); err == nil {
				err = cerr
			}
		}()
		dbopt.Archiver = j
	}
	s, err := model.Open(cfg.Database.Path, dbopt)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Database.Path, err)
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return f(s, logger)
}

func journalOptions(logger *zap.Logger) journal.Options {
	return journal.Options{FileName: "purged-*.fj", Logger: logger}
}

func newCommand(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:          use,
		Short:        short,
		Args:         args,
		SilenceUsage: true,
		RunE:         run,
	}
}
