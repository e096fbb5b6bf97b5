package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/javanhut/blobtransfer/internal/config"
)

var configSetLocal bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set blobtransfer configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <section.field>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		v, err := config.GetValue(args[0])
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(v)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <section.field> <value>",
	Short: "Set and persist a configuration value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.SetValue(args[0], args[1], configSetLocal); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	configSetCmd.Flags().BoolVar(&configSetLocal, "local", false, "Write to the working-directory config instead of the global one")
}
