// Package cuit validates Argentine CUIT/CUIL fiscal identifiers
// (11 digits, mod-11 weighted checksum).
package cuit

import "strings"

// weights applied right-to-left over the first 10 digits.
var weights = [10]int{2, 3, 4, 5, 6, 7, 2, 3, 4, 5}

// Normalize strips separators and whitespace, keeping digits only.
func Normalize(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether id is a checksum-valid CUIT. Separators (dashes,
// dots, spaces) are tolerated. Any other non-numeric input, a length other
// than 11 digits, or an all-zero id returns false. Never panics.
func Valid(id string) bool {
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r == '-', r == '.', r == ' ':
		default:
			return false
		}
	}

	digits := Normalize(id)
	if len(digits) != 11 {
		return false
	}
	if digits == "00000000000" {
		return false
	}

	sum := 0
	for i := 0; i < 10; i++ {
		d := int(digits[9-i] - '0')
		sum += d * weights[i]
	}

	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		// By convention a computed 10 only maps to check digit 9 for the
		// substitute prefixes 23 (personas) and 33 (empresas).
		prefix := digits[:2]
		if prefix != "23" && prefix != "33" {
			return false
		}
		check = 9
	}

	return int(digits[10]-'0') == check
}
