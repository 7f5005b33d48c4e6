package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"subadmin/internal/analytics"
	"subadmin/internal/types"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

func footer(out io.Writer, shown int, env *envelope) {
	if env == nil || env.Meta == nil {
		fmt.Fprintf(out, "%d shown\n", shown)
		return
	}
	fmt.Fprintf(out, "%d of %d shown\n", env.Meta.Total, env.Meta.TotalAll)
}

func renderRequests(out io.Writer, reqs []types.SubscriptionRequest, env *envelope, now time.Time) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tCOMPANY\tTYPE\tSTATUS\tQUOTE\tCREATED")
	for _, r := range reqs {
		company := r.User.Company
		if company == "" {
			company = r.User.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, company, r.Type, r.Status,
			types.FormatMoney(r.QuoteAmount, "INR"),
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	footer(out, len(reqs), env)
	return nil
}

func renderInvoices(out io.Writer, invs []types.Invoice, env *envelope) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "NUMBER\tID\tKIND\tSTATUS\tAMOUNT\tREQUEST\tDUE")
	for _, inv := range invs {
		due := "-"
		if inv.DueAt != nil {
			due = inv.DueAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.Number, inv.ID, inv.Kind, inv.Status,
			types.FormatMoney(inv.Amount, inv.Currency),
			orDash(inv.RequestID), due)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	footer(out, len(invs), env)
	return nil
}

func renderAnalytics(out io.Writer, m analytics.Metrics) error {
	tw := newTable(out)
	fmt.Fprintf(tw, "Accounts\t%s\n", humanize.Comma(int64(m.Totals.Accounts)))
	fmt.Fprintf(tw, "Active subscriptions\t%s\n", humanize.Comma(int64(m.Totals.ActiveSubscriptions)))
	fmt.Fprintf(tw, "Pending requests\t%s\n", humanize.Comma(int64(m.Totals.PendingRequests)))
	fmt.Fprintf(tw, "Invoices\t%s (%d paid)\n", humanize.Comma(int64(m.Totals.Invoices)), m.Totals.PaidInvoices)
	fmt.Fprintf(tw, "Draft quotations\t%d\n", m.Totals.DraftQuotations)
	fmt.Fprintf(tw, "Revenue (INR)\t%s\n", types.FormatMoney(m.Totals.RevenueINR, "INR"))

	currencies := make([]string, 0, len(m.Totals.RevenueByCurrency))
	for cur := range m.Totals.RevenueByCurrency {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)
	for _, cur := range currencies {
		fmt.Fprintf(tw, "Revenue (%s)\t%s\n", cur, types.FormatMoney(m.Totals.RevenueByCurrency[cur], cur))
	}

	if len(m.PlanDistribution) > 0 {
		plans := make([]string, 0, len(m.PlanDistribution))
		for _, p := range m.PlanDistribution {
			plans = append(plans, fmt.Sprintf("%s=%d", p.Plan, p.Count))
		}
		fmt.Fprintf(tw, "Plans\t%s\n", strings.Join(plans, " "))
	}
	return tw.Flush()
}

func renderAudit(out io.Writer, entries []types.AuditLogEntry, now time.Time) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "WHEN\tENTITY\tENTITY_ID\tACTION\tUSER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(e.Timestamp, now, "ago", "from now"),
			e.Entity, e.EntityID, e.Action, orDash(e.UserID))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d entries\n", len(entries))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
