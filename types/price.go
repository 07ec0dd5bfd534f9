package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MicrosPerUnit is the number of micro-units in one major currency unit.
// Marketplaces report prices in micros (1.99 USD = 1_990_000).
const MicrosPerUnit int64 = 1_000_000

// Price is a marketplace price in micro-units of its currency.
// All arithmetic is integer-only.
type Price struct {
	Micros   int64  `json:"micros"`
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur"
}

// PriceFromMicros creates a Price from a micros amount.
func PriceFromMicros(micros int64, currency string) Price {
	return Price{Micros: micros, Currency: strings.ToLower(currency)}
}

// PriceFromMinor creates a Price from minor units (cents, pence).
// For zero-decimal currencies the minor unit is the major unit.
func PriceFromMinor(minor int64, currency string) Price {
	return Price{Micros: minor * (MicrosPerUnit / pow10(currencyDecimals(currency))), Currency: strings.ToLower(currency)}
}

// IsZero returns true if the amount is zero.
func (p Price) IsZero() bool { return p.Micros == 0 }

// Major returns the price in major units as a float, as marketplaces
// present it to clients. Use Micros for arithmetic.
func (p Price) Major() float64 {
	return float64(p.Micros) / float64(MicrosPerUnit)
}

// Minor returns the price truncated to minor units of its currency.
func (p Price) Minor() int64 {
	return p.Micros / (MicrosPerUnit / pow10(currencyDecimals(p.Currency)))
}

// FormatMajor returns the major unit string without currency symbol.
// "1.99" for 1_990_000 USD micros, "120" for 120_000_000 JPY micros.
func (p Price) FormatMajor() string {
	decimals := currencyDecimals(p.Currency)
	minor := p.Minor()
	if decimals == 0 {
		return fmt.Sprintf("%d", minor)
	}

	divisor := pow10(decimals)

	isNegative := minor < 0
	if isNegative {
		minor = -minor
	}

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	result := fmt.Sprintf(format, minor/divisor, minor%divisor)

	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string with currency symbol.
// Examples: "$1.99", "€0.99", "¥120"
func (p Price) String() string {
	return currencySymbol(p.Currency) + p.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Micros   int64  `json:"micros"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Micros:   p.Micros,
		Currency: p.Currency,
		Display:  p.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (p *Price) UnmarshalJSON(data []byte) error {
	var raw struct {
		Micros   int64  `json:"micros"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PriceFromMicros(raw.Micros, raw.Currency)
	return nil
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
		"sek": "kr ",
		"nzd": "NZ$",
		"inr": "₹",
		"brl": "R$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"jpy": true,
		"krw": true,
		"vnd": true,
		"clp": true,
		"idr": true,
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}
