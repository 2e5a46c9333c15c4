// Package cmd implements the displib command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/encode"
	coremon "github.com/kilianp07/displib/core/monitoring"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/infra/monitoring"
)

// options is shared by every subcommand; cfg is set before RunE.
type options struct {
	cfgPath  string
	logLevel string
	cfg      *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "displib",
		Short:         "Train scheduling engine for DISPLIB instances",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			coremon.Flush(2 * time.Second)
		},
	}
	root.PersistentFlags().StringVarP(&o.cfgPath, "config", "c", "", "configuration file (yaml or json); defaults and DISPLIB_ variables apply without one")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override logging.level")
	root.AddCommand(newSolveCmd(o), newVerifyCmd(o), newInspectCmd(o), newServeCmd(o))
	return root
}

// Execute runs the CLI.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		logger.New("main").Errorf("%v", err)
	}
	return err
}

func (o *options) setup() error {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Console); err != nil {
		return err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return err
	}
	coremon.Init(mon)
	o.cfg = cfg
	return nil
}

// routingFlags binds --routing and --extra-delay over the configured policy.
type routingFlags struct {
	mode  string
	delay int64
}

func (f *routingFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "routing", "", "branch delay policy: none, all_branches or swap_only")
	cmd.Flags().Int64Var(&f.delay, "extra-delay", 0, "extra delay added on routing edges selected by --routing")
}

func (f *routingFlags) apply(cmd *cobra.Command, p *encode.RoutingPolicy) error {
	if cmd.Flags().Changed("routing") {
		mode, err := encode.ParseRoutingMode(f.mode)
		if err != nil {
			return err
		}
		p.Mode = mode
	}
	if cmd.Flags().Changed("extra-delay") {
		p.ExtraDelay = f.delay
	}
	return p.Validate()
}
