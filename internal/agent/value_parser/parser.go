// Package value_parser extracts a numeric reading from a raw sensor payload.
package value_parser

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrNoNumericValue = errors.New("payload holds no numeric value")

// Parse methods, in the order they are attempted.
const (
	MethodInvariant = "invariant"
	MethodEnUS      = "en-US"
	MethodEsES      = "es-ES"
	MethodLenient   = "lenient"
	MethodInteger   = "integer"
	MethodHex       = "hex"
)

type Result struct {
	Value float64
	// Cleaned is the payload after noise removal and separator normalisation.
	Cleaned string
	// Corrected reports whether characters had to be dropped from the payload.
	Corrected bool
	Method    string
}

type numberFormat struct {
	name    string
	decimal byte
	group   byte
}

var locales = []numberFormat{
	{name: MethodEnUS, decimal: '.', group: ','},
	{name: MethodEsES, decimal: ',', group: '.'},
}

func isAllowed(r rune) bool {
	return (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '+' || r == '-' || r == 'e' || r == 'E'
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

// Parse returns the first interpretation of payload that yields a finite number.
// When both '.' and ',' appear, ',' is a thousands separator; a lone ',' is the
// decimal separator.
func Parse(payload string) (Result, error) {
	raw := strings.TrimSpace(payload)
	if raw == "" {
		return Result{}, ErrNoNumericValue
	}

	// Hex is only read with an explicit prefix; stripping would turn 0x1F into 01.
	if hasHexPrefix(raw) {
		if v, ok := parseHex(raw); ok {
			return Result{Value: v, Cleaned: raw, Method: MethodHex}, nil
		}
	}

	res := Result{Cleaned: raw}
	if strings.IndexFunc(raw, func(r rune) bool { return !isAllowed(r) }) >= 0 {
		res.Cleaned = strings.Map(func(r rune) rune {
			if isAllowed(r) {
				return r
			}
			return -1
		}, raw)
		res.Corrected = true
	}

	if !hasDigit(res.Cleaned) {
		return res, ErrNoNumericValue
	}

	s := res.Cleaned
	hasDot, hasComma := strings.Contains(s, "."), strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	res.Cleaned = s

	if v, ok := parseFloat(s); ok {
		res.Value, res.Method = v, MethodInvariant
		return res, nil
	}
	for _, loc := range locales {
		if v, ok := parseLocale(s, loc); ok {
			res.Value, res.Method = v, loc.name
			return res, nil
		}
	}
	if lenient := stripLenient(s); lenient != "" {
		if v, ok := parseFloat(lenient); ok {
			res.Value, res.Method, res.Cleaned = v, MethodLenient, lenient
			return res, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		res.Value, res.Method = float64(n), MethodInteger
		return res, nil
	}
	return res, ErrNoNumericValue
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseLocale parses s with the given separators. Group separators are only
// accepted between runs of exactly three digits.
func parseLocale(s string, f numberFormat) (float64, bool) {
	intPart, fracPart := s, ""
	if idx := strings.LastIndexByte(s, f.decimal); idx >= 0 && f.decimal != f.group {
		if strings.Count(s, string(f.decimal)) > 1 {
			return 0, false
		}
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if strings.IndexByte(intPart, f.group) >= 0 {
		sign := ""
		if intPart != "" && (intPart[0] == '+' || intPart[0] == '-') {
			sign, intPart = intPart[:1], intPart[1:]
		}
		groups := strings.Split(intPart, string(f.group))
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return 0, false
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return 0, false
			}
		}
		intPart = sign + strings.Join(groups, "")
	}
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	return parseFloat(out)
}

// stripLenient keeps a leading sign, the digits and the first '.'.
func stripLenient(s string) string {
	var b strings.Builder
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !dot:
			dot = true
			b.WriteRune(r)
		case (r == '-' || r == '+') && i == 0:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSuffix(b.String(), ".")
	if !hasDigit(out) {
		return ""
	}
	return out
}

func hasHexPrefix(s string) bool {
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func parseHex(s string) (float64, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return float64(n), true
}
