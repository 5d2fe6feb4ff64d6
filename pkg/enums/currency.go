package enums

import "fmt"

// Currency is an ISO 4217 code. Amounts are always integer minor units of
// the order's currency.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyMXN Currency = "MXN"
)

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyMXN:
		return true
	}
	return false
}

// ParseCurrency validates a raw code from a request or config value.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
