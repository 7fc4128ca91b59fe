package main

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/teleop-linksim/internal/config"
	"github.com/signalsfoundry/teleop-linksim/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "teleop-sim",
		Short: "Teleoperation link emulator.",
		Long: `teleop-sim couples an operator station and a simulated robot through ` +
			`an emulated network with latency, jitter, packet loss and bandwidth. ` +
			`It can run a live session or sweep a set of link conditions.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newRunCmd(g), newSweepCmd(g))
	return root
}

// load reads configuration and applies the shared flag overrides.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	logCfg := cfg.Log.Logging()
	logCfg.Output = cmd.ErrOrStderr()
	return cfg, logging.New(logCfg), nil
}
