package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javanhut/blobtransfer/internal/colors"
	"github.com/javanhut/blobtransfer/internal/config"
)

const blobtransferVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "blobtransfer",
	Short: "blobtransfer is a content-addressed file transfer tool",
	Long:  `blobtransfer serves and fetches content-addressed files and collections over an authenticated, peer-pinned transport.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfg, err := config.Load(); err == nil && !cfg.Color.UI {
			colors.SetColorEnabled(false)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("blobtransfer version %s\n", blobtransferVersion)
			os.Exit(0)
		}
		cmd.Help()
	},
}

var version bool

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&version, "version", false, "Print the blobtransfer version")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)

	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketShowCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd)

	rootCmd.AddCommand(identityCmd)
}
