// Package chunker splits documents into overlapping token windows for
// embedding and indexing.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fks-trading/intel/internal/domain"
)

// Tokenizer encodes text to token ids and back. The production
// implementation wraps a BPE encoding; tests substitute a fake.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunker splits text into sliding windows of tokens.
type Chunker struct {
	window  int
	overlap int
	tok     Tokenizer
}

// New creates a Chunker. The overlap must be strictly smaller than the
// window, otherwise the window would never advance.
func New(tok Tokenizer, window, overlap int) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", domain.ErrInvalidChunkConfig)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", domain.ErrInvalidChunkConfig, window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf(
			"%w: overlap %d must be in [0, window), window is %d",
			domain.ErrInvalidChunkConfig, overlap, window,
		)
	}
	return &Chunker{window: window, overlap: overlap, tok: tok}, nil
}

// CountTokens returns the token count of text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.tok.Encode(text))
}

// Split chunks text into overlapping windows. Blank input yields no
// chunks. Every chunk carries a copy of meta.
func (c *Chunker) Split(text string, meta map[string]string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	text = cleanText(text)
	tokens := c.tok.Encode(text)

	var chunks []domain.Chunk
	start := 0
	index := 0

	for start < len(tokens) {
		end := start + c.window
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]

		chunks = append(chunks, domain.Chunk{
			Index:      index,
			Content:    strings.TrimSpace(c.tok.Decode(window)),
			TokenCount: len(window),
			Metadata:   copyMeta(meta),
		})

		if end >= len(tokens) {
			break
		}
		start += c.window - c.overlap
		index++
	}

	return chunks
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	specialRe    = regexp.MustCompile(`[^\w\s.,!?\-:;()\[\]{}/'"]`)
)

// cleanText collapses whitespace runs and strips characters outside the
// allowed punctuation set.
func cleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = specialRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
