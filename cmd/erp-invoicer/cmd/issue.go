package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	money "github.com/rezonia/erp-invoicer/internal/decimal"
	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/pkg/invoicelib"
)

var (
	issueUser        string
	issueKind        string
	issueAmount      string
	issueDescription string
	issueReference   string
	issueLink        string
	issueDraft       bool
	issueTimeout     time.Duration
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an ERP invoice for a purchase",
	Long: `Create an invoice in the ERP for one purchase and record it locally.

The amount is tax inclusive. Customers whose phone starts with +966 or
00966 are charged 15% VAT; everyone else is invoiced without tax.

Purchase kinds:
  - subscription_monthly
  - subscription_annual
  - credits_pack

Examples:
  erp-invoicer issue --user u1 --kind credits_pack --amount 57.50
  erp-invoicer issue --user u1 --kind annual --amount 399.99 --reference PAY-9912
  erp-invoicer issue --user u1 --kind monthly --amount 49 --draft -f table`,
	Args: cobra.NoArgs,
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)

	issueCmd.Flags().StringVar(&issueUser, "user", "", "Local user id")
	issueCmd.Flags().StringVar(&issueKind, "kind", "", "Purchase kind")
	issueCmd.Flags().StringVar(&issueAmount, "amount", "", "Tax-inclusive amount charged")
	issueCmd.Flags().StringVar(&issueDescription, "description", "", "Invoice line description")
	issueCmd.Flags().StringVar(&issueReference, "reference", "", "Payment reference (default: generated)")
	issueCmd.Flags().StringVar(&issueLink, "link", "", "Existing local invoice id to reconcile")
	issueCmd.Flags().BoolVar(&issueDraft, "draft", false, "Keep the invoice as a draft")
	issueCmd.Flags().DurationVar(&issueTimeout, "timeout", 2*time.Minute, "Workflow timeout")

	_ = issueCmd.MarkFlagRequired("user")
	_ = issueCmd.MarkFlagRequired("kind")
	_ = issueCmd.MarkFlagRequired("amount")
}

func runIssue(cmd *cobra.Command, args []string) error {
	kind, err := model.ParsePurchaseKind(issueKind)
	if err != nil {
		return err
	}
	amount, err := money.ParseMoney(issueAmount)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), issueTimeout)
	defer cancel()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	printVerbose("Issuing %s invoice for %s (%s)\n", kind, issueUser, amount)

	result, err := app.Issue(ctx, invoicelib.InvoiceRequest{
		UserID:             issueUser,
		PurchaseKind:       kind,
		GrossAmount:        amount,
		Description:        issueDescription,
		PaymentReference:   issueReference,
		LocalInvoiceLinkID: issueLink,
		DraftOnly:          issueDraft,
	})
	if err != nil {
		if !invoicelib.IsRetrySafe(err) {
			return fmt.Errorf("%w (check the ERP before retrying)", err)
		}
		return err
	}

	if result.Warning != "" {
		printVerbose("Warning: %s\n", result.Warning)
	}

	return printResult(result, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "NUMBER\tSTATE\tEXCL\tVAT\tINCL\tPARTNER\tMATCHED\tLOCAL")
		fmt.Fprintln(tw, "------\t-----\t----\t---\t----\t-------\t-------\t-----")
		inv := result.RemoteInvoice
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			inv.DocumentNumber,
			inv.State,
			inv.AmountExclVAT.StringFixed(2),
			inv.VATAmount.StringFixed(2),
			inv.AmountInclVAT.StringFixed(2),
			result.RemotePartnerID,
			result.PartnerMatch,
			result.LocalInvoiceID,
		)
	})
}
