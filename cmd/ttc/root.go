package main

import (
	"fmt"

	"github.com/banshee-data/collision.report/internal/config"
	"github.com/banshee-data/collision.report/internal/monitoring"
	"github.com/banshee-data/collision.report/internal/version"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
}

func (o *rootOptions) loadConfig() (*config.FusionConfig, error) {
	if o.configPath == "" {
		return config.EmptyFusionConfig(), nil
	}
	cfg, err := config.LoadFusionConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "ttc",
		Short:         "Lidar and camera time-to-collision estimation",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			monitoring.SetVerbose(o.verbose)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "JSON tuning file (defaults apply to omitted keys)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log per-box diagnostics")

	root.AddCommand(
		newRunCmd(o),
		newRunsCmd(),
		newReportCmd(),
		newTopViewCmd(o),
	)
	return root
}
