package pipeline

import (
	"strings"
	"unicode"

	"github.com/mgalindo/deedflow/internal/deed"
)

// Chunker splits extracted document text into bounded overlapping
// segments. Concatenating the non-overlapped portions of the chunks in
// order reconstructs the input text exactly.
type Chunker struct {
	Size    int
	Overlap int
}

// Split produces the ordered chunk sequence. It fails with
// deed.InputError when the text carries no content. Chunk boundaries are
// nudged backwards off the middle of digit runs where possible, so
// identifiers like CNPJs and process numbers are not cut in half; the
// overlap makes this best-effort adjustment safe.
func (c Chunker) Split(text string) ([]deed.DocumentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &deed.InputError{Reason: "document text is empty"}
	}
	size := c.Size
	if size <= 0 {
		size = 2000
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []deed.DocumentChunk
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		} else {
			end = avoidDigitSplit(runes, start, end, overlap)
		}
		chunks = append(chunks, deed.DocumentChunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// avoidDigitSplit pulls the cut point back to the start of a digit run
// when the boundary would land inside one. The retreat never exceeds the
// overlap, so the next chunk still starts inside the previous one and
// coverage stays gapless.
func avoidDigitSplit(runes []rune, start, end, overlap int) int {
	maxRetreat := 40
	if overlap < maxRetreat {
		maxRetreat = overlap
	}
	if maxRetreat == 0 || end >= len(runes) || !isIdentRune(runes[end-1]) || !isIdentRune(runes[end]) {
		return end
	}
	for back := 0; back < maxRetreat && end-1 > start; back++ {
		if !isIdentRune(runes[end-1]) {
			return end
		}
		end--
	}
	return end
}

func isIdentRune(r rune) bool {
	return unicode.IsDigit(r) || r == '.' || r == '/' || r == '-'
}
