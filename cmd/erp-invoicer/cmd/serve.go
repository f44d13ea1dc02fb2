package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for issuing invoices.

The API provides endpoints for:
  - POST /api/v1/invoices               - Issue an invoice for a purchase
  - POST /api/v1/invoices/:id/qr        - Backfill the QR of a local invoice
  - GET  /api/v1/invoices/:id/document  - Render the customer PDF
  - GET  /health                        - Health check
  - GET  /metrics                       - Prometheus metrics

Examples:
  # Start server with the configured address
  erp-invoicer serve

  # Start on a custom port in debug mode
  erp-invoicer serve --address :9090 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default: server.address)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "HTTP read timeout (default: server.read_timeout)")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout (default: server.write_timeout)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serverAddr != "" {
		cfg.Server.Address = serverAddr
	}
	if serverDebug {
		cfg.Server.Debug = true
	}
	if readTimeout > 0 {
		cfg.Server.ReadTimeout = readTimeout
	}
	if writeTimeout > 0 {
		cfg.Server.WriteTimeout = writeTimeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Printf("Starting server on %s\n", cfg.Server.Address)
	if cfg.ERP.Configured() {
		fmt.Printf("ERP: %s (database %s)\n", cfg.ERP.URL, cfg.ERP.Database)
	} else {
		fmt.Println("ERP not configured; invoice requests will fail")
	}

	return app.Server().Run(ctx)
}
