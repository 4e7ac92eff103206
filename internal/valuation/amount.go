// Package valuation turns collected answers into a practice valuation.
//
// It holds the free-text amount parser, the tiered valuation formula and the
// USD formatter used in assistant messages.
package valuation

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

type suffix struct {
	token      string
	multiplier float64
}

// suffixes are scanned in order; the first one found in the input whose
// preceding text holds a number wins.
var suffixes = []suffix{
	{"k", 1e3},
	{"thousand", 1e3},
	{"m", 1e6},
	{"million", 1e6},
	{"b", 1e9},
	{"billion", 1e9},
}

// ParseAmount interprets a free-text monetary string such as "1.5m",
// "$250,000" or "2 billion". Input with no number in it yields 0.
func ParseAmount(text string) float64 {
	v, _ := ParseAmountStrict(text)
	return v
}

// ParseAmountStrict is ParseAmount that also reports whether the input held
// a usable number at all. The result is always finite and non-negative.
func ParseAmountStrict(text string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(text))

	if cleaned == "" {
		return 0, false
	}

	for _, s := range suffixes {
		idx := strings.Index(cleaned, s.token)
		if idx < 0 {
			continue
		}
		if v, ok := leadingFloat(numericOnly(cleaned[:idx])); ok {
			return finite(v * s.multiplier)
		}
	}

	v, ok := leadingFloat(numericOnly(cleaned))
	if !ok {
		return 0, false
	}
	return finite(v)
}

// numericOnly drops currency symbols, separators and other noise.
func numericOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
}

// leadingFloat parses the longest prefix of s that looks like a decimal
// number, so "1.2.3" reads as 1.2.
func leadingFloat(s string) (float64, bool) {
	end, digits, dot := 0, 0, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			break scan
		}
		end++
	}
	if digits == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil && !math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
