// Package smstext normalizes model output for SMS and USSD delivery:
// feature phones render plain text only, and gateways bill per segment.
package smstext

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxSMSLen caps replies at three concatenated GSM segments.
	MaxSMSLen = 480
	// MaxUSSDLen is the single-screen budget most gateways enforce.
	MaxUSSDLen = 160
)

var (
	fenceRe   = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")
	heavyMdRe = regexp.MustCompile(`[*_#>` + "`" + `]+`)
	bulletRe  = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
)

// Frame makes text safe for a phone screen: markdown markers stripped,
// whitespace collapsed to single spaces, clamped to max on a word boundary.
func Frame(s string, max int) string {
	out := fenceRe.ReplaceAllString(s, "$1")
	out = bulletRe.ReplaceAllString(out, "")
	out = heavyMdRe.ReplaceAllString(out, "")
	out = collapseWhitespace(out)
	return Truncate(out, max)
}

// Truncate clamps s to max runes, preferring to cut at the last word
// boundary so the tail is not a split word.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := runes[:max]
	for i := len(cut) - 1; i > max/2; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " \t")
}

// Clip is a hard rune cut with no boundary search, for metric details and
// alert excerpts where a split word is acceptable.
func Clip(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(b.String())
}
