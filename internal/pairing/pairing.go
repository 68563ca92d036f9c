// Package pairing implements the barcode-shape rules used to match the two
// halves of a serial-count-2 product.
//
// The numeric rule: strip the trailing integer of both barcodes; with the same
// prefix, an odd n pairs with n+1 and an even n pairs with n-1. When either
// barcode has no trailing integer, two same-length barcodes that differ only
// in their last character pair when that character pair is {A,B} or {1,2}.
package pairing

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoTrailingNumber is returned by Partner when the barcode ends in a non-digit.
var ErrNoTrailingNumber = errors.New("barcode has no trailing number")

// TrailingNumber splits barcode into its prefix and trailing integer.
// Digit width is preserved so "P009" yields ("P", 9, 3).
func TrailingNumber(barcode string) (prefix string, n int64, width int, ok bool) {
	i := len(barcode)
	for i > 0 && barcode[i-1] >= '0' && barcode[i-1] <= '9' {
		i--
	}
	digits := barcode[i:]
	if digits == "" || len(digits) > 18 {
		return "", 0, 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	return barcode[:i], v, len(digits), true
}

// IsPair reports whether a and b look like the two halves of one pair.
// It is symmetric.
func IsPair(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	pa, na, _, okA := TrailingNumber(a)
	pb, nb, _, okB := TrailingNumber(b)
	if okA && okB {
		if pa != pb {
			return false
		}
		lo, hi := na, nb
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi-lo == 1 && lo%2 == 1 {
			return true
		}
	}
	return fallbackPair(a, b)
}

func fallbackPair(a, b string) bool {
	if len(a) != len(b) || len(a) < 2 {
		return false
	}
	last := len(a) - 1
	if a[:last] != b[:last] {
		return false
	}
	x, y := a[last], b[last]
	if x > y {
		x, y = y, x
	}
	return (x == 'A' && y == 'B') || (x == '1' && y == '2')
}

// Partner computes the expected other half of barcode: the prefix is kept and
// the number moves to n+1 (odd) or n-1 (even). Leading zeros are preserved.
func Partner(barcode string) (string, error) {
	prefix, n, width, ok := TrailingNumber(barcode)
	if !ok {
		return "", ErrNoTrailingNumber
	}
	var m int64
	if n%2 == 1 {
		m = n + 1
	} else {
		if n == 0 {
			return "", ErrNoTrailingNumber
		}
		m = n - 1
	}
	digits := strconv.FormatInt(m, 10)
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return prefix + digits, nil
}

// Group is one pair produced by GroupPairs. Computed names the half that was
// derived with Partner because it was not part of the input ("" otherwise).
type Group struct {
	First    string
	Second   string
	Computed string
}

// GroupPairs arranges barcodes into pairs, preserving input order of the
// first member. Unmatched barcodes are paired with their computed partner;
// those without a trailing number are returned in unpaired.
func GroupPairs(barcodes []string) (groups []Group, unpaired []string) {
	used := make(map[int]bool, len(barcodes))
	for i, a := range barcodes {
		if used[i] {
			continue
		}
		used[i] = true
		matched := false
		for j := i + 1; j < len(barcodes); j++ {
			if used[j] || !IsPair(a, barcodes[j]) {
				continue
			}
			used[j] = true
			first, second := order(a, barcodes[j])
			groups = append(groups, Group{First: first, Second: second})
			matched = true
			break
		}
		if matched {
			continue
		}
		partner, err := Partner(a)
		if err != nil {
			unpaired = append(unpaired, a)
			continue
		}
		first, second := order(a, partner)
		groups = append(groups, Group{First: first, Second: second, Computed: partner})
	}
	return groups, unpaired
}

// order puts the odd-numbered (or A/1) half first.
func order(a, b string) (string, string) {
	_, na, _, okA := TrailingNumber(a)
	_, nb, _, okB := TrailingNumber(b)
	if okA && okB && na != nb {
		if na < nb {
			return a, b
		}
		return b, a
	}
	if a < b {
		return a, b
	}
	return b, a
}
