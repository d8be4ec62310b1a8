package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "pcbscan",
		Short:        "Offline PCB teardown: edges, colour segmentation and model-assisted identification",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "configs/config.toml", "path to the TOML config file")
	cmd.AddCommand(newAnalyzeCmd(opts))
	return cmd
}
