package billing

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subadmin/internal/types"
)

var hundred = decimal.NewFromInt(100)

// LineItemInput is a caller-supplied line item.
type LineItemInput struct {
	Description string          `json:"description" validate:"required,max=200"`
	Quantity    int             `json:"quantity" validate:"required,min=1,max=100000"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	Module      string          `json:"module,omitempty" validate:"omitempty,max=100"`
}

// Totals is the computed money summary of a document.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Amount    decimal.Decimal
}

// ComputeTotals sums line items and applies taxRate percent, rounding tax to
// two decimal places.
func ComputeTotals(items []types.InvoiceLineItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, li := range items {
		subtotal = subtotal.Add(li.Total())
	}
	tax := subtotal.Mul(taxRate).Div(hundred).Round(2)
	return Totals{Subtotal: subtotal, TaxAmount: tax, Amount: subtotal.Add(tax)}
}

func validateLineItems(in []LineItemInput) error {
	if len(in) == 0 {
		return types.NewAppError(types.ErrCodeValidationLineItems, "at least one line item is required", nil)
	}
	for i, li := range in {
		var problem string
		switch {
		case strings.TrimSpace(li.Description) == "":
			problem = "description is required"
		case li.Quantity < 1:
			problem = "quantity must be at least 1"
		case li.UnitAmount.IsNegative():
			problem = "unit_amount must not be negative"
		}
		if problem != "" {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationLineItems, "invalid line item: "+problem, nil,
				map[string]any{"index": i})
		}
	}
	return nil
}

func buildLineItems(in []LineItemInput) []types.InvoiceLineItem {
	out := make([]types.InvoiceLineItem, 0, len(in))
	for _, li := range in {
		out = append(out, types.InvoiceLineItem{
			ID:          newLineItemID(),
			Description: strings.TrimSpace(li.Description),
			Quantity:    li.Quantity,
			UnitAmount:  li.UnitAmount,
			Module:      li.Module,
		})
	}
	return out
}

// defaultLineItems quotes the request as a single line named after its type,
// e.g. "NEW ACCOUNT". QuoteAmount includes tax, so the line carries the
// pre-tax base and the document total lands back on QuoteAmount.
func defaultLineItems(r types.SubscriptionRequest, taxRate decimal.Decimal) []LineItemInput {
	return []LineItemInput{{
		Description: strings.ReplaceAll(string(r.Type), "_", " "),
		Quantity:    1,
		UnitAmount:  TaxExclusive(r.QuoteAmount, taxRate),
	}}
}

// TaxExclusive removes taxRate percent from a tax-inclusive amount, rounded
// to two decimal places.
func TaxExclusive(amount, taxRate decimal.Decimal) decimal.Decimal {
	return amount.Div(decimal.NewFromInt(1).Add(taxRate.Div(hundred))).Round(2)
}

func copyLineItems(in []types.InvoiceLineItem) []types.InvoiceLineItem {
	out := make([]types.InvoiceLineItem, 0, len(in))
	for _, li := range in {
		li.ID = newLineItemID()
		out = append(out, li)
	}
	return out
}

func newInvoiceID() string {
	return "inv_" + uuid.NewString()
}

func newLineItemID() string {
	return "li_" + uuid.NewString()
}
