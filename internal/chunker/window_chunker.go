package chunker

import (
	"iter"
	"unicode/utf8"

	"finqa/internal/domain"
)

const (
	// DefaultChunkSize is the maximum number of runes per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of runes shared by consecutive chunks.
	DefaultChunkOverlap = 200
)

// separators are tried in order when looking for a natural window end.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune(" "),
}

// WindowChunker splits text into overlapping rune windows of bounded size.
type WindowChunker struct {
	size    int
	overlap int
}

// Option configures a WindowChunker.
type Option func(*WindowChunker)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) Option {
	return func(c *WindowChunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in runes.
func WithOverlap(overlap int) Option {
	return func(c *WindowChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker; an overlap that is not smaller than the size is reduced to size/4.
func New(opts ...Option) *WindowChunker {
	c := &WindowChunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the maximum chunk length in runes.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Split lazily yields the chunks of text in order. Every chunk after the first starts
// with the last Overlap() runes of its predecessor, so dropping that prefix from each
// later chunk and concatenating reproduces text exactly.
func (c *WindowChunker) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		n := len(runes)
		start := 0
		for start < n {
			end := start + c.size
			if end >= n {
				yield(string(runes[start:]))
				return
			}
			end = c.breakPoint(runes, start, end)
			if !yield(string(runes[start:end])) {
				return
			}
			start = end - c.overlap
		}
	}
}

// breakPoint moves a window end back to just after the strongest separator found in
// the back half of the window. The result always leaves the next start past start.
func (c *WindowChunker) breakPoint(runes []rune, start, end int) int {
	lowest := start + max(c.overlap+1, c.size/2)
	for _, sep := range separators {
		for p := end; p >= lowest && p >= len(sep); p-- {
			if hasSuffix(runes[:p], sep) {
				return p
			}
		}
	}
	return end
}

func hasSuffix(runes, suffix []rune) bool {
	if len(runes) < len(suffix) {
		return false
	}
	tail := runes[len(runes)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}

// Chunk splits a corpus record into chunks carrying the record's ticker and source.
// Content that is not valid UTF-8 text is rejected with domain.ErrInvalidInput.
func (c *WindowChunker) Chunk(record domain.Record) ([]domain.Chunk, error) {
	if !utf8.ValidString(record.Context) {
		return nil, domain.ErrInvalidInput
	}
	var chunks []domain.Chunk
	idx := 0
	for text := range c.Split(record.Context) {
		chunks = append(chunks, domain.Chunk{
			DocumentID: record.DocumentID,
			Index:      idx,
			Ticker:     record.Ticker,
			Text:       text,
			Source:     record.Source,
		})
		idx++
	}
	return chunks, nil
}
