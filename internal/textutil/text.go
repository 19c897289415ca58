// Package textutil holds the text helpers used by deputies: normalisation,
// paragraph and sentence picking, and reduction of oversized documents.
package textutil

import (
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// ParagraphLimit is the size above which paragraph pickers shorten their result.
	ParagraphLimit = 1000
	// SentenceTail is the fallback length for LastSentence.
	SentenceTail = 70

	// ReduceThreshold is the document size in bytes above which ReduceDocument
	// cuts windows. Multibyte text reaches it with fewer characters.
	ReduceThreshold = 100000
	// WindowSize is the maximum size in bytes of each reduced window.
	WindowSize = 30000
)

var (
	quoteGlyphs  = regexp.MustCompile(`[ʻʼʽ٬‘‚‛՚︐«»“”„‟≪≫《》〝〞〟＂″‶"]`)
	punctSpacing = regexp.MustCompile(`([.?!:;,])(\S)`)
	blankLines   = regexp.MustCompile(`[\r\n]{2,}`)
	spaceRuns    = regexp.MustCompile(`[^\S\r\n]{2,}`)
	markup       = regexp.MustCompile(`<.*>`)
)

// CleanText removes exotic quote glyphs, puts a space after punctuation and
// collapses repeated line breaks and spaces.
func CleanText(s string) string {
	s = quoteGlyphs.ReplaceAllString(s, "")
	s = punctSpacing.ReplaceAllString(s, "${1} ${2}")
	s = blankLines.ReplaceAllString(s, "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	return s
}

// Sanitize strips markup-like tags and surrounding whitespace.
func Sanitize(s string) string {
	return strings.TrimSpace(markup.ReplaceAllString(s, ""))
}

const (
	stopSigns = ".!?…:;\n"
	cutSigns  = ".!?…:;"
)

// nextCut returns the index of the first cut sign in s, or len(s)-1.
func nextCut(s string) int {
	best := -1
	for _, sign := range []string{".", "!", "?", "…", "...", ":", ";"} {
		if i := strings.Index(s, sign); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return len(s) - 1
	}
	return best
}

// FindCut returns the position of the first cut sign at or after start.
func FindCut(s string, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= len(s) {
		return len(s)
	}
	return start + nextCut(s[start:])
}

// shorten returns the tail of s that fits in limit bytes, starting after
// the first cut sign inside that tail when there is one.
func shorten(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	tail := alignRune(s, len(s)-limit)
	shorter := s[tail:]
	cut := nextCut(shorter) + 1
	if cut < len(shorter) {
		return shorter[cut:]
	}
	return shorter
}

// alignRune moves i forward to the next rune boundary.
func alignRune(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// LastParagraph returns the last paragraph of doc, shortened to ParagraphLimit.
func LastParagraph(doc string) string {
	if len(doc) <= ParagraphLimit {
		return CleanText(doc)
	}
	paragraphs := strings.Split(CleanText(doc), "\n")
	last := paragraphs[len(paragraphs)-1]
	if strings.TrimSpace(last) == "" {
		return shorten(doc, ParagraphLimit)
	}
	return shorten(last, ParagraphLimit)
}

// RandomParagraph returns a random paragraph of doc, shortened to ParagraphLimit.
func RandomParagraph(doc string, rnd *rand.Rand) string {
	if len(doc) <= ParagraphLimit {
		return doc
	}
	paragraphs := strings.Split(CleanText(doc), "\n")
	if len(paragraphs) < 2 {
		return LastParagraph(doc)
	}
	return strings.TrimSpace(shorten(paragraphs[rnd.Intn(len(paragraphs))], ParagraphLimit))
}

// LastSentence returns the final sentence of doc. The last three bytes are
// ignored when searching for a terminator so that the closing punctuation of
// the final sentence does not count. Without any terminator the last
// SentenceTail characters are returned.
func LastSentence(doc string) string {
	doc = CleanText(strings.TrimSpace(doc))
	if len(doc) > 3 {
		if i := strings.LastIndexAny(doc[:len(doc)-3], stopSigns); i >= 0 {
			_, size := utf8.DecodeRuneInString(doc[i:])
			return strings.TrimSpace(doc[i+size:])
		}
	}
	if utf8.RuneCountInString(doc) <= SentenceTail {
		return doc
	}
	runes := []rune(doc)
	return strings.TrimSpace(string(runes[len(runes)-SentenceTail:]))
}
