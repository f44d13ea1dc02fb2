package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/erp-invoicer/internal/config"
	"github.com/rezonia/erp-invoicer/pkg/invoicelib"
)

var (
	version = "1.0.0"

	// Global flags
	configFile   string
	verbose      bool
	outputFormat string
	sellerName   string
	sellerVATNo  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "erp-invoicer",
	Short: "Issue customer invoices in an Odoo ERP over XML-RPC",
	Long: `ERP Invoicer creates and posts customer invoices in an Odoo instance
for purchases made by local users.

For every purchase it:
  - Splits the tax-inclusive amount (15% VAT for +966 customers)
  - Finds or creates the customer partner in the ERP
  - Creates and posts the invoice, then reads back the document number and QR
  - Records the ERP invoice against the local invoice ledger

Settings are read from config.toml/yaml, a .env file and INVOICER_* variables.

Examples:
  # Issue an invoice for a purchase
  erp-invoicer issue --user u1 --kind credits_pack --amount 57.50

  # Copy missing QR codes from the ERP
  erp-invoicer backfill-qr --all

  # Start the HTTP API
  erp-invoicer serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		if cmd.Flags().Changed("seller-name") {
			loaded.Seller.Name = sellerName
		}
		if cmd.Flags().Changed("seller-vat") {
			loaded.Seller.VATNumber = sellerVATNo
		}
		cfg = loaded
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./config.{toml,yaml})")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&sellerName, "seller-name", "", "Seller name printed on documents (overrides seller.name)")
	rootCmd.PersistentFlags().StringVar(&sellerVATNo, "seller-vat", "", "Seller VAT number printed on documents (overrides seller.vat_number)")
}

// openApp builds the application for a command and migrates the local tables
func openApp(ctx context.Context) (*invoicelib.App, error) {
	app, err := invoicelib.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := app.Migrate(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return app, nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
