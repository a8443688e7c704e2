package main

import (
	stdlog "log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hammamikhairi/guardian/internal/config"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// cli carries state shared by every subcommand once the root pre-run has
// loaded the configuration.
type cli struct {
	v       *viper.Viper
	cfgPath string
	verbose bool
	quiet   bool

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "guardian",
		Short:         "Infant cry detection and caregiver escalation",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "", "config file (default ./guardian.yaml if present)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "disable all logging")

	root.AddCommand(
		newServeCmd(c),
		newPredictCmd(c),
		newLullabyCmd(c),
		newConfigCmd(c),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.Load(c.v, c.cfgPath)
	if err != nil {
		return err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if c.verbose {
		level = logger.LevelVerbose
	}
	if c.quiet {
		level = logger.LevelOff
	}
	c.log = logger.NewWithFormat(level, os.Stderr, logger.Format(cfg.Log.Format))
	c.cfg = cfg

	// Some libraries log through the standard package.
	stdlog.SetOutput(c.log.Writer())
	stdlog.SetFlags(stdlog.Ltime)
	return nil
}
