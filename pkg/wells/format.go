package wells

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Null is what every rendered view shows for a missing value.
const Null = "-"

var (
	ptPrinter = message.NewPrinter(language.BrazilianPortuguese)
	enPrinter = message.NewPrinter(language.English)
)

// FormatBR formats v with Brazilian grouping: FormatBR(1234.5, 2) == "1.234,50".
func FormatBR(v float64, decimals int) string {
	return ptPrinter.Sprint(number.Decimal(v, number.Scale(decimals)))
}

// FormatEN formats v with English grouping: FormatEN(1234.5, 2) == "1,234.50".
func FormatEN(v float64, decimals int) string {
	return enPrinter.Sprint(number.Decimal(v, number.Scale(decimals)))
}

// FormatFlowBR renders a flow reading for popups, "1.234,50 L/h".
func FormatFlowBR(v float64) string {
	return FormatBR(v, 2) + " L/h"
}
