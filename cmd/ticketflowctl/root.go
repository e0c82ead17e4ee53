package main

import (
	"github.com/spf13/cobra"

	"github.com/novaflow/ticketflow/internal/config"
	"github.com/novaflow/ticketflow/internal/logging"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "ticketflowctl",
	Short: "Drive the ticket workflow engine from the command line",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitViper(cfgFile); err != nil {
			return err
		}
		logging.Initialize(debug)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $XDG_CONFIG_HOME/ticketflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(demoCmd)
}
