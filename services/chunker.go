package services

import (
	"regexp"
	"strings"
	"unicode"

	"docqa-platform/models"

	"github.com/google/uuid"
)

// Chunker splits extracted page text into overlap-aware, word-bounded
// chunks. Consecutive chunks from the same paragraph run share their
// trailing/leading words so that answers spanning a chunk boundary are
// still retrievable.
type Chunker struct {
	maxWords       int
	minWords       int
	overlapWords   int
	blankLineRegex *regexp.Regexp
	spacesRegex    *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

// NewChunker creates a chunker. Overlap is derived from maxWords and
// capped so very large chunks do not repeat excessive context.
func NewChunker(maxWords, minWords int) *Chunker {
	if maxWords <= 0 {
		maxWords = 320
	}
	if minWords <= 0 {
		minWords = 25
	}
	overlap := maxWords / 4
	if overlap > 40 {
		overlap = 40
	}
	return &Chunker{
		maxWords:       maxWords,
		minWords:       minWords,
		overlapWords:   overlap,
		blankLineRegex: regexp.MustCompile(`\n{3,}`),
		spacesRegex:    regexp.MustCompile(` {3,}`),
		paragraphRegex: regexp.MustCompile(`\n\s*\n`),
	}
}

// OverlapWords reports the number of words shared across a chunk boundary.
func (c *Chunker) OverlapWords() int { return c.overlapWords }

// Chunk splits raw text into ordered chunk strings. It returns an empty
// slice only when the input is empty after cleaning; any other input yields
// at least one chunk, even below the minimum word count.
func (c *Chunker) Chunk(text string) []string {
	cleaned := c.cleanText(text)
	if cleaned == "" {
		return nil
	}

	paragraphs := c.paragraphRegex.Split(cleaned, -1)

	var chunks [][]string
	var buf []string
	carried := 0 // words at the front of buf carried over from the previous flush

	flush := func() {
		if len(buf) == 0 {
			return
		}
		if len(buf) >= c.minWords || len(chunks) == 0 {
			chunks = append(chunks, append([]string(nil), buf...))
			return
		}
		// A trailing fragment below the minimum is merged into the previous
		// chunk instead of standing alone. Only the fresh words are merged;
		// the carried overlap already lives in that chunk. If merging would
		// break the word bound, the fragment is kept standalone rather than
		// dropped.
		fresh := buf[carried:]
		if len(fresh) == 0 {
			return
		}
		last := chunks[len(chunks)-1]
		if len(last)+len(fresh) <= c.maxWords {
			chunks[len(chunks)-1] = append(last, fresh...)
		} else {
			chunks = append(chunks, append([]string(nil), buf...))
		}
	}

	pack := func(words []string) {
		if len(words) == 0 {
			return
		}
		if len(buf) > 0 && len(buf)+len(words) > c.maxWords {
			flushed := append([]string(nil), buf...)
			flush()

			carry := c.overlapWords
			if carry > len(flushed) {
				carry = len(flushed)
			}
			buf = append([]string(nil), flushed[len(flushed)-carry:]...)
			carried = len(buf)

			// Trim the carry from the front when it would push the next
			// chunk past the word bound.
			if over := len(buf) + len(words) - c.maxWords; over > 0 {
				if over >= len(buf) {
					buf = buf[:0]
				} else {
					buf = buf[over:]
				}
				carried = len(buf)
			}
		}
		buf = append(buf, words...)
	}

	for _, paragraph := range paragraphs {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		if len(words) <= c.maxWords {
			pack(words)
			continue
		}
		// Oversized paragraph: fall back to sentence units, hard-splitting
		// any sentence that is itself too long.
		for _, unit := range c.splitOversized(paragraph) {
			pack(unit)
		}
	}
	flush()

	return dedupeChunks(chunks)
}

// ChunkPages runs the chunker over every page and assembles indexable
// chunk records with fresh ids and a document-wide ordinal.
func (c *Chunker) ChunkPages(pages []models.PageText, sourceFile string) []models.Chunk {
	var out []models.Chunk
	index := 0
	for _, page := range pages {
		for _, text := range c.Chunk(page.Text) {
			out = append(out, models.Chunk{
				ID:         uuid.New().String(),
				Text:       text,
				SourceFile: sourceFile,
				PageNumber: page.PageNumber,
				ChunkType:  models.ChunkTypeText,
				ChunkIndex: index,
			})
			index++
		}
	}
	return out
}

// cleanText normalizes whitespace: runs of blank lines collapse to one
// blank line, runs of spaces to one space, and control characters are
// stripped.
func (c *Chunker) cleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = c.blankLineRegex.ReplaceAllString(text, "\n\n")
	text = c.spacesRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// splitOversized breaks a too-long paragraph into word units each within
// the bound: sentences first, fixed overlapping windows for any sentence
// that is still too long.
func (c *Chunker) splitOversized(paragraph string) [][]string {
	var units [][]string
	for _, sentence := range splitSentences(paragraph) {
		words := strings.Fields(sentence)
		if len(words) == 0 {
			continue
		}
		if len(words) <= c.maxWords {
			units = append(units, words)
			continue
		}
		step := c.maxWords - c.overlapWords
		if step <= 0 {
			step = c.maxWords
		}
		for start := 0; start < len(words); start += step {
			end := start + c.maxWords
			if end > len(words) {
				end = len(words)
			}
			units = append(units, words[start:end])
			if end == len(words) {
				break
			}
		}
	}
	return units
}

// splitSentences breaks text after terminal punctuation followed by
// whitespace. Regexp lookbehind is unavailable, so the scan is manual.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Consume the full punctuation run ("..." or "?!").
		j := i
		for j+1 < len(runes) {
			next := runes[j+1]
			if next != '.' && next != '!' && next != '?' {
				break
			}
			j++
		}
		if j+1 < len(runes) && unicode.IsSpace(runes[j+1]) {
			sentences = append(sentences, string(runes[start:j+1]))
			start = j + 1
		}
		i = j
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// dedupeChunks drops chunks whose normalized content already appeared,
// preserving first-occurrence order. Overlap can make a short paragraph
// reappear verbatim in the next chunk's carry.
func dedupeChunks(chunks [][]string) []string {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, words := range chunks {
		text := strings.Join(words, " ")
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, text)
	}
	return out
}
