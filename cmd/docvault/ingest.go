package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <tenant-id> [document-id]",
	Short: "Chunk and index pending documents",
	Long: `Ingest a tenant's documents into the vector index. With a document
ID, only that document is ingested. Without one, every pending document
for the tenant is processed, with failures isolated per document.

Examples:
  # Ingest one document
  docvault ingest acme-corp 6f1e9c2a-...

  # Ingest everything pending for a tenant
  docvault ingest acme-corp`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	tenantID := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	if len(args) == 2 {
		if err := a.ingestor.IngestDocument(ctx, tenantID, args[1]); err != nil {
			return err
		}
		fmt.Printf("Document %s ingested\n", args[1])
		return nil
	}

	result, err := a.ingestor.IngestPending(ctx, tenantID)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d document(s), %d failed\n", result.Succeeded, result.Failed)
	if len(result.Errors) > 0 {
		ids := make([]string, 0, len(result.Errors))
		for id := range result.Errors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %s: %v\n", id, result.Errors[id])
		}
	}
	return nil
}

var reingestCmd = &cobra.Command{
	Use:   "reingest <tenant-id> <document-id>",
	Short: "Re-chunk and re-index a document",
	Long: `Move a document back to pending, drop its stale chunks, and run
ingestion again. Useful after an ingestion failure or when the chunking
configuration has changed.

Examples:
  docvault reingest acme-corp 6f1e9c2a-...`,
	Args: cobra.ExactArgs(2),
	RunE: runReingest,
}

func runReingest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ingestor.Reingest(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Document %s reingested\n", args[1])
	return nil
}
