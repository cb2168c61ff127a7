package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docvault/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota <tenant-id>",
	Short: "Show a tenant's usage and limits",
	Long: `Show a tenant's current usage against its tier limits. Daily query
counters reset at midnight UTC.

Examples:
  docvault quota acme-corp
  docvault quota upgrade acme-corp pro
  docvault quota recalc acme-corp`,
	Args: cobra.ExactArgs(1),
	RunE: runQuota,
}

func init() {
	quotaCmd.AddCommand(quotaUpgradeCmd)
	quotaCmd.AddCommand(quotaRecalcCmd)
}

func runQuota(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.ledger.Usage(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Tier:       %s\n", stats.Tier)
	fmt.Printf("Documents:  %d / %s\n", stats.DocumentCount, limitString(int64(stats.MaxDocuments)))
	fmt.Printf("Storage:    %d / %s bytes\n", stats.TotalStorageBytes, limitString(stats.MaxStorageBytes))
	fmt.Printf("Queries:    %d / %s today\n", stats.QueriesToday, limitString(int64(stats.MaxQueriesPerDay)))
	return nil
}

// limitString renders a limit, treating negative values as unlimited.
func limitString(limit int64) string {
	if limit < 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

var quotaUpgradeCmd = &cobra.Command{
	Use:   "upgrade <tenant-id> <tier>",
	Short: "Change a tenant's quota tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		tier := quota.Tier(args[1])
		if err := a.ledger.UpgradeTier(cmd.Context(), args[0], tier); err != nil {
			return err
		}
		fmt.Printf("Tenant %s is now on the %s tier\n", args[0], tier)
		return nil
	},
}

var quotaRecalcCmd = &cobra.Command{
	Use:   "recalc <tenant-id>",
	Short: "Rebuild a tenant's usage counters from stored documents",
	Long: `Recount the tenant's documents and storage from the document table
and overwrite the ledger's counters. Use this if the counters have
drifted from reality.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ledger.Recalculate(cmd.Context(), args[0], a.repo); err != nil {
			return err
		}
		fmt.Printf("Usage recalculated for tenant %s\n", args[0])
		return nil
	},
}
