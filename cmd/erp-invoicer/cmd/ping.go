package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the ERP credentials",
	Long: `Authenticate against the configured ERP and print the service account uid.

Examples:
  erp-invoicer ping
  erp-invoicer ping -f table`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 30*time.Second, "Authentication timeout")
}

// PingResult is the outcome of an ERP credential check
type PingResult struct {
	URL      string `json:"url"`
	Database string `json:"database"`
	UID      int64  `json:"uid"`
	Latency  string `json:"latency"`
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	start := time.Now()
	uid, err := app.Ping(ctx)
	if err != nil {
		return err
	}

	result := PingResult{
		URL:      cfg.ERP.URL,
		Database: cfg.ERP.Database,
		UID:      uid,
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	return printResult(result, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "URL\tDATABASE\tUID\tLATENCY")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", result.URL, result.Database, result.UID, result.Latency)
	})
}
