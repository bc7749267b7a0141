// Package util holds small string helpers shared by the log and error paths.
package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultErrorMaxLen bounds provider error messages kept in results and on
// credential rows.
const DefaultErrorMaxLen = 512

// TruncateLog cuts s to at most maxLen bytes without splitting a UTF-8
// sequence and notes the original size. maxLen <= 0 disables truncation.
func TruncateLog(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// MaskToken keeps the last few characters of a bearer credential so log lines
// can be correlated without exposing the secret.
func MaskToken(t string) string {
	if len(t) < 20 {
		return "***"
	}
	return "..." + t[len(t)-6:]
}
