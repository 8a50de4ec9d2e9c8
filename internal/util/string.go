// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis is appended by Ellipsize when text is cut.
const Ellipsis = "..."

// Ellipsize keeps the first maxRunes runes of s and appends Ellipsis when
// anything was cut. The marker is not counted against maxRunes.
func Ellipsize(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + Ellipsis
}

// TruncateRunes cuts s to at most maxRunes runes, ellipsis included.
// Used for fixed-width columns where the marker must fit the budget.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= len(Ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(Ellipsis)]) + Ellipsis
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ContainsFold reports whether substr is within s, ignoring case.
// Both sides are NFC-normalized and fully case-folded, so "STRASSE" matches
// "Straße" and decomposed accents match composed ones.
// An empty substr matches everything.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(foldString(s), foldString(substr))
}

// foldString returns the caseless form of s. A Caser holds state, so a
// fresh one is made per call.
func foldString(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// OneLine collapses runs of whitespace (newlines included) to single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
