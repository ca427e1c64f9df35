package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0-uddeshya-0/klarbill/internal/assistant"
	"github.com/0-uddeshya-0/klarbill/internal/config"
	"github.com/0-uddeshya-0/klarbill/internal/knowledge"
	"github.com/0-uddeshya-0/klarbill/internal/llm"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
	"github.com/0-uddeshya-0/klarbill/internal/server"
	"github.com/0-uddeshya-0/klarbill/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the KlarBill HTTP API",
	Long: `Start the HTTP server exposing the chat API.

Endpoints:
  POST /chat           - answer an invoice question
  POST /customer_name  - localized customer greeting
  GET  /health         - store and generator status

Required environment variables:
  OPENAI_API_KEY - API key for the text generator

Optional environment variables:
  OPENAI_MODEL        - generator model (default: gpt-4o-mini)
  INVOICE_DB_PATH     - SQLite database path (default: data/invoices.db)
  KNOWLEDGE_BASE_PATH - knowledge catalog JSON (default: data/knowledge_base.json)
  LISTEN_ADDR         - listen address (default: :8000)`,
	Example: `  # Serve on the default address
  klarbill serve

  # Serve on a custom port with a custom database
  klarbill serve --addr :9000 --db /var/lib/klarbill/invoices.db`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides INVOICE_DB_PATH)")
	serveCmd.Flags().String("knowledge-base", "", "Knowledge catalog path (overrides KNOWLEDGE_BASE_PATH)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Configuration incomplete")
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ListenAddr
	}
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.InvoiceDBPath
	}
	kbPath, _ := cmd.Flags().GetString("knowledge-base")
	if kbPath == "" {
		kbPath = cfg.KnowledgeBasePath
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

	catalog := knowledge.Load(kbPath)
	generator := llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	assembler := assistant.NewAssembler(invoices, knowledge.NewRetriever(catalog), generator)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewServer(assembler).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Serve until interrupted
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("db", dbPath).
			Int("knowledge_entries", catalog.Len()).
			Msg("KlarBill API listening")
		errCh <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received interrupt signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}
}
