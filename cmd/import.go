package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/0-uddeshya-0/klarbill/internal/config"
	"github.com/0-uddeshya-0/klarbill/internal/document"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
	"github.com/0-uddeshya-0/klarbill/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import [dump-file]",
	Short: "Import invoice records from a JSON dump into the store",
	Long: `Read a JSON dump of invoice records and write every record into the
SQLite store. The dump maps record ids to raw invoice documents:

  {"record-id": {"Data": {"ProzessDaten": {...}}}, ...}

Existing records with the same id are replaced.`,
	Example: `  # Import into the default database
  klarbill import invoices.json

  # Import into a custom database
  klarbill import invoices.json --db /var/lib/klarbill/invoices.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("db", "", "SQLite database path (overrides INVOICE_DB_PATH)")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("import")

	dumpPath := args[0]
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		if cfg, err := config.Load(); err == nil {
			dbPath = cfg.InvoiceDBPath
		} else {
			dbPath = "data/invoices.db"
		}
	}

	data, err := os.ReadFile(dumpPath)
	if err != nil {
		log.Error().Err(err).Str("file", dumpPath).Msg("Failed to read dump file")
		return fmt.Errorf("failed to read dump file: %w", err)
	}

	var dump map[string]any
	if err := json.Unmarshal(data, &dump); err != nil {
		log.Error().Err(err).Str("file", dumpPath).Msg("Dump file is not valid JSON")
		return fmt.Errorf("dump file is not valid JSON: %w", err)
	}
	if len(dump) == 0 {
		return fmt.Errorf("dump file contains no records")
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

	ids := make([]string, 0, len(dump))
	for id := range dump {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ctx := context.Background()
	for _, id := range ids {
		if err := invoices.Put(ctx, id, document.FromAny(dump[id])); err != nil {
			log.Error().Err(err).Str("record_id", id).Msg("Failed to store record")
			return fmt.Errorf("failed to store record %s: %w", id, err)
		}
	}

	log.Info().
		Int("records", len(ids)).
		Str("db", dbPath).
		Msg("Import completed")
	fmt.Printf("Imported %d records into %s\n", len(ids), dbPath)
	return nil
}
