package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docvault/internal/retrieval"
)

var (
	retrieveK       int
	retrieveContext bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <tenant-id> <query>",
	Short: "Search a tenant's documents",
	Long: `Run a similarity search over a tenant's indexed chunks. Each query
counts against the tenant's daily query quota.

Examples:
  # Top 3 chunks with scores
  docvault retrieve acme-corp "refund policy"

  # Top 5, concatenated for prompt context
  docvault retrieve acme-corp "refund policy" --k 5 --context`,
	Args: cobra.ExactArgs(2),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveK, "k", retrieval.DefaultK, "number of chunks to return")
	retrieveCmd.Flags().BoolVar(&retrieveContext, "context", false, "print chunks joined as one context block")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	tenantID, query := args[0], args[1]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	if retrieveContext {
		text, err := a.retrieval.RetrieveContext(ctx, tenantID, query, retrieveK)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	results, err := a.retrieval.Retrieve(ctx, tenantID, query, retrieveK)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		indexed, herr := a.router.HasTenant(ctx, tenantID)
		if herr == nil && !indexed {
			fmt.Println("No documents indexed for this tenant")
		} else {
			fmt.Println("No matching chunks")
		}
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.4f] document=%s chunk=%d\n", i+1, r.Score, r.DocumentID, r.Ordinal)
		fmt.Printf("   %s\n", r.Content)
	}
	return nil
}
