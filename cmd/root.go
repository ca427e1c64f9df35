package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

var version = "2.0.0"

var rootCmd = &cobra.Command{
	Use:   "klarbill",
	Short: "KlarBill - conversational assistant for German electricity invoices",
	Long: `KlarBill answers customer questions about German electricity invoices.

It extracts billing facts (consumption, tariffs, levies, cost breakdown)
from nested invoice documents, classifies each query's intent and lets a
language model phrase the final answer grounded in those facts.

Run "klarbill serve" for the HTTP API or "klarbill ask" for a one-shot
answer from the command line.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("KlarBill executed")

		fmt.Println("Welcome to KlarBill!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
