package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func rule(char string, width int) string {
	return strings.Repeat(char, width)
}

func PrintSeparator(char string, width int) {
	fmt.Println(rule(char, width))
}

// PrintHeader frames a report title between two "=" rules.
func PrintHeader(title string, width int) {
	fmt.Printf("\n%s\n%s\n%s\n", rule("=", width), title, rule("=", width))
}

func PrintFooter(message string, width int) {
	fmt.Printf("\n%s\n%s\n%s\n\n", rule("=", width), message, rule("=", width))
}

// PrintBoxSeparator splits the sub-sections of a user block.
func PrintBoxSeparator(width int) {
	fmt.Println("├" + rule("─", width))
}

func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatBRL renders an amount the way Brazilian statements print it: R$ 1.234,56.
func FormatBRL(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	fixed := amount.StringFixed(2)
	whole, cents := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}

	return fmt.Sprintf("%sR$ %s,%s", sign, grouped.String(), cents)
}

// FormatPercent prints a rate stored as a percentage number, e.g. 10 -> "10%".
func FormatPercent(pct decimal.Decimal) string {
	return pct.String() + "%"
}
