package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	backfillAll   bool
	backfillLimit int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-qr [invoice-id]",
	Short: "Copy missing QR codes from the ERP",
	Long: `Look up the compliance QR of taxed local invoices in the ERP and store it.

Invoices that already carry a QR, untaxed invoices and invoices without a
document number are skipped without contacting the ERP.

Examples:
  erp-invoicer backfill-qr 3f0c8a4e-5a57-4c1e-9a3e-0f6f7c1d9b10
  erp-invoicer backfill-qr --all --limit 200 -f table`,
	Args: func(cmd *cobra.Command, args []string) error {
		if backfillAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().BoolVar(&backfillAll, "all", false, "Backfill every taxed invoice missing a QR")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 100, "Maximum invoices to process with --all")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if backfillAll {
		results, err := app.BackfillMissing(ctx, backfillLimit)
		if err != nil {
			return err
		}
		found := 0
		for _, r := range results {
			if r.Found {
				found++
			}
		}
		printVerbose("Backfilled %d of %d invoices\n", found, len(results))
		return printResult(results, qrTable(results...))
	}

	result, err := app.BackfillQR(ctx, args[0])
	if err != nil {
		return fmt.Errorf("backfill %s: %w", args[0], err)
	}
	return printResult(result, qrTable(result))
}
