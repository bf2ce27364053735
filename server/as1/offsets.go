package as1

import (
	"sort"
	"unicode/utf8"
)

// Tag offsets are defined in Unicode codepoints over unescaped content, but
// sources report them in whatever unit their API uses: UTF-8 bytes (bluesky
// facets, Go regexp matches), UTF-16 code units (Facebook message tags).
// These helpers re-index source offsets during normalization so canonical
// tags are always codepoint-based.

// CodepointLen returns the number of Unicode codepoints in s.
func CodepointLen(s string) int {
	return utf8.RuneCountInString(s)
}

// CodepointSlice returns the codepoint span [start, start+length) of s,
// clamped to the available length.
func CodepointSlice(s string, start, length int) string {
	if start < 0 || length <= 0 {
		return ""
	}
	runes := []rune(s)
	if start >= len(runes) {
		return ""
	}
	end := start + length
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end])
}

// ByteToCodepoint converts a byte offset into s to a codepoint offset.
// Offsets past the end of s clamp to the codepoint length.
func ByteToCodepoint(s string, byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset >= len(s) {
		return utf8.RuneCountInString(s)
	}
	return utf8.RuneCountInString(s[:byteOffset])
}

// UTF16ToCodepoint converts a UTF-16 code unit offset into s to a codepoint
// offset. Codepoints outside the BMP count as two units in UTF-16.
func UTF16ToCodepoint(s string, unitOffset int) int {
	if unitOffset <= 0 {
		return 0
	}
	units := 0
	for i, r := range s {
		if units >= unitOffset {
			return utf8.RuneCountInString(s[:i])
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return utf8.RuneCountInString(s)
}

// SortTags puts tags into canonical order: offset-annotated tags first,
// ordered by StartIndex, then tags without offsets in their original order.
// Sources and codecs both apply this, so a round trip through any format
// preserves the tag sequence.
func SortTags(tags []Tag) {
	sort.SliceStable(tags, func(i, j int) bool {
		oi, oj := tags[i].HasOffsets(), tags[j].HasOffsets()
		if oi != oj {
			return oi
		}
		if oi {
			return tags[i].StartIndex < tags[j].StartIndex
		}
		return false
	})
}

// ReindexBytes rewrites a [start, end) byte span over content into canonical
// codepoint StartIndex/Length values on tag.
func ReindexBytes(tag *Tag, content string, start, end int) {
	cpStart := ByteToCodepoint(content, start)
	cpEnd := ByteToCodepoint(content, end)
	tag.StartIndex = cpStart
	tag.Length = cpEnd - cpStart
}

// ReindexUTF16 rewrites a [start, end) UTF-16 unit span over content into
// canonical codepoint StartIndex/Length values on tag.
func ReindexUTF16(tag *Tag, content string, start, end int) {
	cpStart := UTF16ToCodepoint(content, start)
	cpEnd := UTF16ToCodepoint(content, end)
	tag.StartIndex = cpStart
	tag.Length = cpEnd - cpStart
}
