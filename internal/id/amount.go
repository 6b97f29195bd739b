package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/gustavo/insight-cli/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// MinimalUnits parses a swap amount given either as minimal units or as a
// decimal amount of the native coin, returning the amount in minimal units.
// Exactly one of the two forms must be provided.
func MinimalUnits(baseUnits, decimal string) (uint64, error) {
	baseUnits = strings.TrimSpace(baseUnits)
	decimal = strings.TrimSpace(decimal)
	if baseUnits != "" && decimal != "" {
		return 0, clierr.New(clierr.CodeUsage, "use either --amount or --amount-decimal, not both")
	}
	if baseUnits == "" && decimal == "" {
		return 0, clierr.New(clierr.CodeUsage, "amount is required")
	}

	if baseUnits != "" {
		v, err := strconv.ParseUint(baseUnits, 10, 64)
		if err != nil {
			return 0, clierr.New(clierr.CodeUsage, "--amount must be a non-negative integer in minimal units")
		}
		if v == 0 {
			return 0, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
		}
		return v, nil
	}

	if !decimalPattern.MatchString(decimal) {
		return 0, clierr.New(clierr.CodeUsage, "--amount-decimal must be in decimal form like 1.25")
	}
	v, err := decimalToMinimalUnits(decimal)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	return v, nil
}

// FormatNative renders a minimal-unit amount as a decimal amount of the
// native coin, trimming trailing zeros.
func FormatNative(units uint64) string {
	s := strconv.FormatUint(units, 10)
	if len(s) <= NativeDecimals {
		s = strings.Repeat("0", NativeDecimals-len(s)+1) + s
	}
	intPart := s[:len(s)-NativeDecimals]
	fracPart := strings.TrimRight(s[len(s)-NativeDecimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func decimalToMinimalUnits(decimal string) (uint64, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > NativeDecimals {
		return 0, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds native decimals (%d)", NativeDecimals))
	}

	fracPart = fracPart + strings.Repeat("0", NativeDecimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(combined, 10, 64)
	if err != nil {
		return 0, clierr.New(clierr.CodeUsage, "decimal amount out of range")
	}
	return v, nil
}
