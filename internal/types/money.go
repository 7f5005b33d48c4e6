package types

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"INR": "₹",
	"EUR": "€",
	"GBP": "£",
}

// FormatMoney renders an amount for display, e.g. "$1,299" or "₹11,800.50".
// Unknown currencies are prefixed with their code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	f, _ := amount.Round(2).Float64()
	text := humanize.Commaf(f)
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return sym + text
	}
	if currency == "" {
		return text
	}
	return strings.ToUpper(currency) + " " + text
}

// KnownCurrency reports whether code has a display symbol.
func KnownCurrency(code string) bool {
	_, ok := currencySymbols[strings.ToUpper(code)]
	return ok
}
