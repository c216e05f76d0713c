package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Personal assistant backend that never acts without approval",
	Long:  "Steward is a personal assistant backend built around a permission gate and tiered memory. Nothing mutates state without an allowlisted action, and nothing runs unattended.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(memoriesCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(evaluateCmd)
}
