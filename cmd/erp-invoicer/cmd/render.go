package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var renderOutput string

var renderCmd = &cobra.Command{
	Use:   "render <invoice-id>",
	Short: "Render the customer PDF for a local invoice",
	Long: `Render the customer-facing PDF of a local invoice.

A missing QR is backfilled from the ERP first when possible.

Examples:
  erp-invoicer render 3f0c8a4e-5a57-4c1e-9a3e-0f6f7c1d9b10 -o invoice.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Output file (default: <invoice-id>.pdf)")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	pdf, err := app.RenderDocument(ctx, args[0])
	if err != nil {
		return err
	}

	path := renderOutput
	if path == "" {
		path = args[0] + ".pdf"
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	printVerbose("Wrote %d bytes to %s\n", len(pdf), path)
	return nil
}
