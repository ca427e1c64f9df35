package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0-uddeshya-0/klarbill/internal/assistant"
	"github.com/0-uddeshya-0/klarbill/internal/config"
	"github.com/0-uddeshya-0/klarbill/internal/knowledge"
	"github.com/0-uddeshya-0/klarbill/internal/llm"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
	"github.com/0-uddeshya-0/klarbill/internal/store"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one invoice question from the command line",
	Long: `Answer a single question against the stored invoices without running
the HTTP server. The invoice is resolved by --customer and/or --invoice,
exactly as the /chat endpoint would.`,
	Example: `  # Ask about consumption
  klarbill ask --customer K-1001 "How much electricity did I use?"

  # German answer for a specific invoice, facts as JSON
  klarbill ask --invoice R-2025-001 --language de --json "Was ist der Arbeitspreis?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().String("customer", "", "Customer number")
	askCmd.Flags().String("invoice", "", "Invoice number")
	askCmd.Flags().String("language", "", "Answer language: en or de (default: DEFAULT_LANGUAGE)")
	askCmd.Flags().String("db", "", "SQLite database path (overrides INVOICE_DB_PATH)")
	askCmd.Flags().Bool("json", false, "Print the structured facts as JSON instead of prose")
	askCmd.Flags().Int("timeout", 60, "Generation timeout in seconds")
}

func runAsk(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ask")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Configuration incomplete")
		return err
	}

	customerNumber, _ := cmd.Flags().GetString("customer")
	invoiceNumber, _ := cmd.Flags().GetString("invoice")
	language, _ := cmd.Flags().GetString("language")
	dbPath, _ := cmd.Flags().GetString("db")
	asJSON, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	if customerNumber == "" && invoiceNumber == "" {
		return fmt.Errorf("at least one of --customer or --invoice is required")
	}
	if language == "" {
		language = cfg.DefaultLanguage
	}
	if dbPath == "" {
		dbPath = cfg.InvoiceDBPath
	}

	invoices, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Error().Err(err).Str("db", dbPath).Msg("Failed to open invoice store")
		return fmt.Errorf("failed to open invoice store: %w", err)
	}
	defer func() {
		if closeErr := invoices.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close invoice store")
		}
	}()

	catalog := knowledge.Load(cfg.KnowledgeBasePath)
	generator := llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	assembler := assistant.NewAssembler(invoices, knowledge.NewRetriever(catalog), generator)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	resp := assembler.Answer(ctx, assistant.Request{
		Query:          args[0],
		Language:       language,
		CustomerNumber: customerNumber,
		InvoiceNumber:  invoiceNumber,
	})

	if asJSON {
		jsonData, err := json.MarshalIndent(resp.Structured, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		if _, err := os.Stdout.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Println()
	}

	fmt.Println(resp.Text)
	if resp.NeedsInvoiceNumber {
		for _, number := range resp.InvoiceSuggestions {
			fmt.Printf("  - %s\n", number)
		}
	}
	return nil
}
