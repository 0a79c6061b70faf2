package domain

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders minor units with two decimals and thousands separators,
// e.g. 145000, "mxn" -> "1,450.00 MXN".
func FormatAmount(amount int64, currency string) string {
	out := amountPrinter.Sprintf("%.2f", float64(amount)/100)
	if currency = strings.TrimSpace(currency); currency != "" {
		out += " " + strings.ToUpper(currency)
	}
	return out
}
