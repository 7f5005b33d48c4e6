package main

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"subadmin/internal/analytics"
	"subadmin/internal/audit"
	"subadmin/internal/billing"
	"subadmin/internal/scheduler"
	"subadmin/internal/types"
)

func (c *cli) requestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "List and decide subscription requests",
	}

	var status, typ, q string
	list := &cobra.Command{
		Use:   "list",
		Short: "List subscription requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			setIf(params, "status", status)
			setIf(params, "type", typ)
			setIf(params, "q", q)

			var reqs []types.SubscriptionRequest
			env, err := c.client().get(cmd.Context(), "/requests", params, &reqs)
			if err != nil {
				return err
			}
			return renderRequests(c.out, reqs, env, time.Now())
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (PENDING, QUOTED, SENT, ...)")
	list.Flags().StringVar(&typ, "type", "", "filter by request type")
	list.Flags().StringVarP(&q, "query", "q", "", "free-text search")

	approve := &cobra.Command{
		Use:   "approve REQUEST_ID",
		Short: "Approve a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r types.SubscriptionRequest
			if _, err := c.client().post(cmd.Context(), "/requests/"+url.PathEscape(args[0])+"/approve", nil, &r); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s is now %s\n", r.ID, r.Status)
			return nil
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject REQUEST_ID",
		Short: "Reject a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if reason != "" {
				body = map[string]string{"reason": reason}
			}
			var r types.SubscriptionRequest
			if _, err := c.client().post(cmd.Context(), "/requests/"+url.PathEscape(args[0])+"/reject", body, &r); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s is now %s\n", r.ID, r.Status)
			return nil
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "reason shown to the requester")

	cmd.AddCommand(list, approve, reject)
	return cmd
}

func (c *cli) invoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoices",
		Aliases: []string{"inv"},
		Short:   "List invoices and quotations and move them through their lifecycle",
	}

	var status, kind, requestID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List invoices and quotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			setIf(params, "status", status)
			setIf(params, "kind", kind)
			setIf(params, "request_id", requestID)

			var invs []types.Invoice
			env, err := c.client().get(cmd.Context(), "/invoices", params, &invs)
			if err != nil {
				return err
			}
			return renderInvoices(c.out, invs, env)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status (DRAFT, SENT, PAID, VOID, OVERDUE)")
	list.Flags().StringVar(&kind, "kind", "", "QUOTATION or INVOICE")
	list.Flags().StringVar(&requestID, "request", "", "only documents for this request")

	cmd.AddCommand(list,
		c.invoiceTransition("send", "Send a draft", "send"),
		c.invoiceTransition("pay", "Record payment", "mark-paid"),
		c.invoiceTransition("void", "Void a document", "void"),
	)
	return cmd
}

func (c *cli) invoiceTransition(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " INVOICE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inv types.Invoice
			if _, err := c.client().post(cmd.Context(), "/invoices/"+url.PathEscape(args[0])+"/"+action, nil, &inv); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s is now %s\n", inv.Number, inv.ID, inv.Status)
			return nil
		},
	}
}

func (c *cli) quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Work with quotations",
	}

	var (
		items    []string
		currency string
		taxRate  string
	)
	create := &cobra.Command{
		Use:   "create REQUEST_ID",
		Short: "Create a draft quotation for a request",
		Example: `  # One line item derived from the request
  consolectl quote create REQ-2025-001

  # Explicit line items: description:quantity:unit_amount
  consolectl quote create REQ-2025-001 --item "Maps module:1:4500" --item "Extra users:10:120"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := billing.QuotationInput{Currency: strings.ToUpper(currency)}
			for _, raw := range items {
				li, err := parseLineItem(raw)
				if err != nil {
					return err
				}
				in.LineItems = append(in.LineItems, li)
			}
			if taxRate != "" {
				d, err := decimal.NewFromString(taxRate)
				if err != nil {
					return fmt.Errorf("invalid --tax-rate %q: %w", taxRate, err)
				}
				in.TaxRate = &d
			}

			var inv types.Invoice
			if _, err := c.client().post(cmd.Context(), "/requests/"+url.PathEscape(args[0])+"/quotations", in, &inv); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "created %s (%s) total %s\n", inv.Number, inv.ID, types.FormatMoney(inv.Amount, inv.Currency))
			return nil
		},
	}
	create.Flags().StringArrayVar(&items, "item", nil, "line item as description:quantity:unit_amount (repeatable)")
	create.Flags().StringVar(&currency, "currency", "", "ISO currency code; defaults to the server setting")
	create.Flags().StringVar(&taxRate, "tax-rate", "", "tax percentage; defaults to the server setting")

	cmd.AddCommand(create)
	return cmd
}

// parseLineItem reads "description:quantity:unit_amount". The description
// may itself contain colons.
func parseLineItem(raw string) (billing.LineItemInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return billing.LineItemInput{}, fmt.Errorf("invalid --item %q: want description:quantity:unit_amount", raw)
	}
	n := len(parts)
	qty, err := strconv.Atoi(strings.TrimSpace(parts[n-2]))
	if err != nil || qty < 1 {
		return billing.LineItemInput{}, fmt.Errorf("invalid quantity in --item %q", raw)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(parts[n-1]))
	if err != nil {
		return billing.LineItemInput{}, fmt.Errorf("invalid unit amount in --item %q: %w", raw, err)
	}
	return billing.LineItemInput{
		Description: strings.TrimSpace(strings.Join(parts[:n-2], ":")),
		Quantity:    qty,
		UnitAmount:  amount,
	}, nil
}

func (c *cli) sweepCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark past-due invoices OVERDUE now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := scheduler.MaintenancePayload{Task: scheduler.TaskOverdueSweep}
			if asOf != "" {
				t, err := time.Parse(time.RFC3339, asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of: %w", err)
				}
				payload.ReferenceTime = &t
			}
			var res scheduler.Result
			if _, err := c.client().post(cmd.Context(), "/maintenance/overdue-sweep", payload, &res); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s marked %d invoice(s) overdue\n", res.Task, res.Changed)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "sweep as of this past RFC 3339 instant")
	return cmd
}

func (c *cli) analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show dashboard metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var m analytics.Metrics
			if _, err := c.client().get(cmd.Context(), "/analytics", nil, &m); err != nil {
				return err
			}
			return renderAnalytics(c.out, m)
		},
	}
}

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	var entity, entityID, action, user, output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Download audit entries (zstd JSON lines)",
		Long: "Download matching audit entries. With --output the compressed stream is saved\n" +
			"as served; otherwise it is decoded and printed as a table.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			setIf(params, "entity", entity)
			setIf(params, "entity_id", entityID)
			setIf(params, "action", action)
			setIf(params, "user_id", user)

			body, hdr, err := c.client().download(cmd.Context(), "/audit-logs/export", params)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, body, 0o600); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				fmt.Fprintf(c.out, "wrote %s entries to %s (%s)\n",
					orDash(hdr.Get("X-Audit-Entries")), output, humanize.Bytes(uint64(len(body))))
				return nil
			}

			entries, err := audit.ReadExport(bytes.NewReader(body))
			if err != nil {
				return err
			}
			return renderAudit(c.out, entries, time.Now())
		},
	}
	export.Flags().StringVar(&entity, "entity", "", "filter by entity (REQUEST, INVOICE, ...)")
	export.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	export.Flags().StringVar(&action, "action", "", "filter by action")
	export.Flags().StringVar(&user, "user", "", "filter by acting user id")
	export.Flags().StringVarP(&output, "output", "o", "", "save the compressed stream to this file")

	cmd.AddCommand(export)
	return cmd
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}
