package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/pcb-agent/pkg/config"
	"github.com/Protocol-Lattice/pcb-agent/pkg/logging"
	"github.com/Protocol-Lattice/pcb-agent/pkg/runtime"
)

// app carries what PersistentPreRunE loaded into the subcommands.
type app struct {
	configFile string
	cfg        *config.Config
	rt         *runtime.Runtime
}

func (a *app) runtime(ctx context.Context) (*runtime.Runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	logger := logging.New(a.cfg.Log.Level, a.cfg.Log.Format, os.Stderr)
	rt, err := runtime.New(ctx, a.cfg, runtime.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.rt = rt
	return rt, nil
}

func (a *app) close() {
	if a.rt != nil {
		_ = a.rt.Close()
		a.rt = nil
	}
}

func rootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pcbagent",
		Short: "PCB defect analysis supervisor",
		Long: `pcbagent coordinates three specialist agents: defect detection on board
images, cost impact analysis and IPC test protocol design.

Without a subcommand it starts an interactive prompt.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			return runInteractive(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), rt.Supervisor(), a.cfg.Vision.OutputDir)
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "optional YAML configuration file")

	root.AddCommand(
		serveCommand(a),
		chatCommand(a),
		analyzeCommand(a),
		detectCommand(a),
		detectionsCommand(a),
	)
	return root
}
