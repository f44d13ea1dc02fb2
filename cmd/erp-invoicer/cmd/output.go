package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rezonia/erp-invoicer/pkg/invoicelib"
)

// printResult writes v as indented JSON, or as a table when the command
// knows how to tabulate it
func printResult(v any, table func(w *tabwriter.Writer)) error {
	return writeResult(os.Stdout, v, table)
}

func writeResult(w io.Writer, v any, table func(w *tabwriter.Writer)) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func qrTable(results ...*invoicelib.QRResult) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "INVOICE\tFOUND\tSOURCE\tREASON")
		fmt.Fprintln(tw, "-------\t-----\t------\t------")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", r.InvoiceID, r.Found, r.Source, r.Reason)
		}
	}
}
