package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var output string

	rootCmd := &cobra.Command{
		Use:           "pixctl",
		Short:         "Operator tool for the Pix provider credentials",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat(output)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", formatJSON, "Output format (json, yaml)")

	rootCmd.AddCommand(tokenCmd(&output))
	rootCmd.AddCommand(diagnoseCmd(&output))
	rootCmd.AddCommand(chargeCmd(&output))
	rootCmd.AddCommand(statusCmd(&output))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
