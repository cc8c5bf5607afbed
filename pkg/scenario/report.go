package scenario

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMoney renders a decimal amount in the scenario's account currency
// using golang.org/x/text with an English printer, so reports show the
// currency's symbol (for example "$" or "€") with the amount rather than a
// bare decimal string. A code that does not parse as an ISO currency falls
// back to the amount with two decimals followed by the code.
func FormatMoney(accountCurrency string, amount decimal.Decimal) string {
	unit, err := currency.ParseISO(accountCurrency)
	if err != nil {
		return amount.StringFixed(2) + " " + accountCurrency
	}
	f, _ := amount.Float64()
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(f)))
}
