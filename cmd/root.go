// Package cmd defines the fleetsim command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "fleetsim",
	Short: "Taxi fleet route search and simulation",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(simulateCmd, routeCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }
