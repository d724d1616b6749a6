package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "nesttask-push",
	Short:         "NestTask push delivery service for Android devices.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, sendCmd)
}
