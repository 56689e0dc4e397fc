package main

import (
	"github.com/spf13/cobra"

	"convtrainer/internal/config"
)

// version is stamped by the build.
var version = "dev"

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "convtrainer-server",
		Short:         "Real-time multiplayer server for the Conversion Trainer",
		Args:          cobra.ExactArgs(0),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to an optional server.yaml")
	cmd.SetVersionTemplate("convtrainer-server v{{.Version}}\n")
	return cmd
}
