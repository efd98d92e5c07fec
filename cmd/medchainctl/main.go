package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "medchainctl",
		Short:         "Operator tooling for the MedChainX ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(dumpCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
