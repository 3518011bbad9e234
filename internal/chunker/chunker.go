package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200

	separator = "\n"
)

// Chunker splits document text into overlapping windows for embedding.
// Sizes are measured in characters (runes).
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

var defaultChunker = &Chunker{size: DefaultSize, overlap: DefaultOverlap}

// Split chunks text with the default size and overlap.
func Split(text string) []string {
	return defaultChunker.Split(text)
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns no chunks for empty or whitespace-only text. Lines are packed
// greedily into windows of at most Size characters; each new window starts
// with trailing lines of the previous one totalling at most Overlap
// characters. A line longer than Size is cut into fixed windows that overlap
// by exactly Overlap characters.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sepLen := utf8.RuneCountInString(separator)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var (
		chunks []string
		window []string
		total  int
	)
	flush := func() {
		if doc := strings.TrimSpace(strings.Join(window, separator)); doc != "" {
			chunks = append(chunks, doc)
		}
	}

	for _, unit := range strings.Split(text, separator) {
		if unit == "" {
			continue
		}
		n := utf8.RuneCountInString(unit)

		if n > c.size {
			if len(window) > 0 {
				flush()
				window, total = nil, 0
			}
			chunks = append(chunks, c.window(unit)...)
			continue
		}

		if total+n+joinCost(len(window)) > c.size {
			flush()
			for len(window) > 0 && (total > c.overlap || total+n+joinCost(len(window)) > c.size) {
				total -= utf8.RuneCountInString(window[0]) + joinCost(len(window)-1)
				window = window[1:]
			}
		}
		window = append(window, unit)
		total += n + joinCost(len(window)-1)
	}
	if len(window) > 0 {
		flush()
	}
	return chunks
}

func (c *Chunker) window(unit string) []string {
	runes := []rune(unit)
	step := c.size - c.overlap

	var pieces []string
	for start := 0; ; start += step {
		end := min(start+c.size, len(runes))
		if piece := string(runes[start:end]); strings.TrimSpace(piece) != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return pieces
}
