package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCents converts a decimal amount in major units to cents.
// Backend rows expose prices as numeric columns ("49.90"); line items keep cents.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// FormatCents renders cents as a decimal string with two fractional digits.
// Examples: 9900 → "99.00", 5 → "0.05", -1250 → "-12.50"
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
