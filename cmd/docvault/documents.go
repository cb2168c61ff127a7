package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <tenant-id>",
	Short: "List a tenant's documents",
	Long: `List every document the tenant owns, newest first, with status and
chunk counts.

Examples:
  docvault list acme-corp`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	docs, err := a.manager.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Println("No documents")
		return nil
	}

	for _, d := range docs {
		line := fmt.Sprintf("%s  %-10s  %8d bytes  %s", d.ID, d.Status, d.FileSize, d.OriginalFilename)
		if d.ChunkCount != nil {
			line += fmt.Sprintf("  (%d chunks)", *d.ChunkCount)
		}
		if d.ErrorMessage != nil {
			line += fmt.Sprintf("  error: %s", *d.ErrorMessage)
		}
		fmt.Println(line)
	}
	return nil
}

var deleteAll bool

var deleteCmd = &cobra.Command{
	Use:   "delete <tenant-id> [document-id]",
	Short: "Delete documents and their indexed chunks",
	Long: `Delete a document, its stored file, and its chunks, releasing the
tenant's quota. With --all, every document the tenant owns is removed
and the tenant's index is dropped.

Examples:
  # Delete one document
  docvault delete acme-corp 6f1e9c2a-...

  # Delete everything a tenant owns
  docvault delete acme-corp --all`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete all of the tenant's documents")
}

func runDelete(cmd *cobra.Command, args []string) error {
	tenantID := args[0]

	if deleteAll && len(args) == 2 {
		return fmt.Errorf("--all cannot be combined with a document ID")
	}
	if !deleteAll && len(args) < 2 {
		return fmt.Errorf("a document ID is required unless --all is set")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	if deleteAll {
		deleted, err := a.manager.DeleteAll(ctx, tenantID)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d document(s)\n", deleted)
		return nil
	}

	if err := a.manager.Delete(ctx, tenantID, args[1]); err != nil {
		return err
	}
	fmt.Printf("Deleted document %s\n", args[1])
	return nil
}
