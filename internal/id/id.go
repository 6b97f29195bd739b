package id

import (
	"regexp"
	"strings"

	clierr "github.com/gustavo/insight-cli/internal/errors"
)

// NativeCoinType is the network-native coin every swap spends from.
const NativeCoinType = "0x2::sui::SUI"

// NativeDecimals is the implied decimal scale of minimal-unit amounts.
const NativeDecimals = 9

var (
	coinTypePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}::[A-Za-z_][A-Za-z0-9_]*::[A-Za-z_][A-Za-z0-9_]*$`)
	tweetIDPattern  = regexp.MustCompile(`^[0-9]{1,20}$`)
)

// IsCoinType reports whether v looks like a Move coin type
// (address::module::name), the identity form of token insights.
func IsCoinType(v string) bool {
	return coinTypePattern.MatchString(strings.TrimSpace(v))
}

// IsTweetID reports whether v looks like a numeric tweet identifier,
// the identity form of market insights.
func IsTweetID(v string) bool {
	return tweetIDPattern.MatchString(strings.TrimSpace(v))
}

// ParseCoinType validates and canonicalizes a coin type argument.
func ParseCoinType(v string) (string, error) {
	v = strings.TrimSpace(v)
	if !coinTypePattern.MatchString(v) {
		return "", clierr.New(clierr.CodeUsage, "coin type must be in address::module::name form like 0x2::sui::SUI")
	}
	return v, nil
}
