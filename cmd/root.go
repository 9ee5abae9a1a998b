/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bugtriage",
	Short: "Conversational bug report intake for Slack and Telegram",
	Long: `bugtriage walks reporters through a short questionnaire in chat,
stores the finished bug reports, announces them to a triage channel, and can
investigate them against recent repository changes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
