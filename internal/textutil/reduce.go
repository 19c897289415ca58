package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReduceDocument shrinks documents longer than ReduceThreshold bytes to three
// windows (start, middle, end) separated by blank lines. Shorter documents
// are returned unchanged.
func ReduceDocument(doc string) string {
	return strings.Join(ReduceWindows(doc), "\n\n")
}

// ReduceWindows returns the windows ReduceDocument joins. Every window is at
// most WindowSize bytes, starts at a sentence start and ends right after a
// sentence terminator whenever the window contains one.
func ReduceWindows(doc string) []string {
	n := len(doc)
	if n <= ReduceThreshold {
		return []string{doc}
	}

	nominal := []int{0, n/2 - WindowSize/2, n - WindowSize}
	windows := make([]string, 0, len(nominal))
	for i, from := range nominal {
		start := 0
		if i > 0 {
			start = sentenceStart(doc, from)
		}
		limit := start + WindowSize
		if limit > n {
			limit = n
		}
		end := sentenceEnd(doc, start, limit)
		windows = append(windows, strings.TrimSpace(doc[start:end]))
	}
	return windows
}

// sentenceStart returns the first position after the next terminator at or
// after from, skipping whitespace.
func sentenceStart(doc string, from int) int {
	i := strings.IndexAny(doc[from:], cutSigns)
	if i < 0 {
		return alignRune(doc, from)
	}
	pos := from + i
	_, size := utf8.DecodeRuneInString(doc[pos:])
	pos += size
	for pos < len(doc) {
		r, size := utf8.DecodeRuneInString(doc[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

// sentenceEnd returns the position right after the last terminator in
// doc[start:limit], or limit (moved back to a rune boundary) if there is none.
func sentenceEnd(doc string, start, limit int) int {
	for limit > start && limit < len(doc) && !utf8.RuneStart(doc[limit]) {
		limit--
	}
	i := strings.LastIndexAny(doc[start:limit], cutSigns)
	if i < 0 {
		return limit
	}
	pos := start + i
	_, size := utf8.DecodeRuneInString(doc[pos:])
	return pos + size
}
