package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Inspect the billing log (admin query surface)",
}

var billingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List billing entries with pagination (spec.md §6.1 list_billing)",
	RunE:  runBillingList,
}

func init() {
	billingListCmd.Flags().Uint64("offset", 0, "Pagination offset")
	billingListCmd.Flags().Uint64("limit", 50, "Pagination limit")
	billingCmd.AddCommand(billingListCmd)
}

func runBillingList(cmd *cobra.Command, args []string) error {
	offset, _ := cmd.Flags().GetUint64("offset")
	limit, _ := cmd.Flags().GetUint64("limit")

	e, err := openReadOnlyEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.Payment.ListBilling(e.Store, offset, limit)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%s\t%s\t%s\t%d\t%s\t%s\n",
			entry.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			entry.VaultID.String(),
			entry.TxType,
			entry.AmountBaseUnits,
			entry.LedgerTxHash,
			entry.RelatedPrincipal.String())
	}
	return nil
}
