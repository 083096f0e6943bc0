package util

import (
	"fmt"
	"strings"

	"chainwork/core"
)

// TruncateOutput cuts text to the given byte and line caps, keeping the head.
// It returns the possibly shortened text and a truncation record when either
// cap was exceeded. Caps <= 0 are unlimited.
func TruncateOutput(text string, maxBytes, maxLines int) (string, *core.Truncation) {
	origBytes := len(text)
	origLines := strings.Count(text, "\n") + 1
	if text == "" {
		origLines = 0
	}

	truncated := false
	if maxLines > 0 && origLines > maxLines {
		lines := strings.SplitN(text, "\n", maxLines+1)
		text = strings.Join(lines[:maxLines], "\n")
		truncated = true
	}
	if maxBytes > 0 && len(text) > maxBytes {
		text = cutValidUTF8(text, maxBytes)
		truncated = true
	}
	if !truncated {
		return text, nil
	}
	return text, &core.Truncation{
		Truncated:     true,
		OriginalBytes: origBytes,
		OriginalLines: origLines,
		Note:          fmt.Sprintf("output truncated from %d bytes / %d lines", origBytes, origLines),
	}
}

// cutValidUTF8 trims text to at most n bytes without splitting a rune.
func cutValidUTF8(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	if len(cut) > 0 && cut[len(cut)-1] >= 0xC0 {
		cut = cut[:len(cut)-1]
	}
	return cut
}
