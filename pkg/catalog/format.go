package catalog

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
)

// Format renders a Money value in major units with its currency symbol,
// e.g. {24900 USD} -> "USD 249.00". Used for audit records and log output;
// amounts on the wire stay in minor units.
func Format(m Money) string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		// Unknown code: still render something unambiguous.
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}

	scale, _ := currency.Cash.Rounding(unit)
	value := float64(m.Amount) / math.Pow10(scale)
	return fmt.Sprintf("%v", unit.Amount(value))
}
