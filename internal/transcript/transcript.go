// Package transcript assembles final recognition segments into one string.
package transcript

import "strings"

// Clean normalizes transcript whitespace.
func Clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

// Append adds a segment, merging duplicates and prefix corrections so
// repeated backend output never grows the transcript twice.
func Append(segments []string, text string) []string {
	text = Clean(text)
	if text == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, text)
	}

	last := Clean(segments[len(segments)-1])
	switch {
	case text == last:
		return segments
	case strings.HasPrefix(text, last):
		segments[len(segments)-1] = text
		return segments
	case strings.HasPrefix(last, text):
		return segments
	default:
		return append(segments, text)
	}
}

// Join renders accumulated segments as the session transcript.
func Join(segments []string) string {
	return strings.Join(segments, " ")
}
