package embedding

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultChunkTokens  = 1000
	DefaultChunkOverlap = 200
	// CharsPerToken approximates token counts when no tokenizer is loaded.
	CharsPerToken = 4
)

// Tokenizer encodes text to token ids and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct{ enc *tiktoken.Tiktoken }

func (t tiktokenTokenizer) Encode(text string) []int { return t.enc.Encode(text, nil, nil) }
func (t tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

var (
	cl100kOnce sync.Once
	cl100k     Tokenizer
	cl100kErr  error
)

// LoadCL100K returns the cl100k_base tokenizer, or an error when the BPE
// ranks cannot be loaded. Callers fall back to character counting.
func LoadCL100K() (Tokenizer, error) {
	cl100kOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			cl100kErr = err
			return
		}
		cl100k = tiktokenTokenizer{enc: enc}
	})
	return cl100k, cl100kErr
}

// Chunk is one window of a document. Start and End are offsets in tokens, or
// in runes when no tokenizer is available.
type Chunk struct {
	Index      int
	Text       string
	Start      int
	End        int
	TokenCount int
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	Tokenizer Tokenizer
	Size      int
	Overlap   int
}

func (c Chunker) params() (size, overlap int) {
	size, overlap = c.Size, c.Overlap
	if size <= 0 {
		size = DefaultChunkTokens
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return size, overlap
}

// Split slides a window of Size advancing by Size-Overlap until the text is
// consumed. Only the last chunk may be shorter than the window.
func (c Chunker) Split(text string) []Chunk {
	size, overlap := c.params()
	if c.Tokenizer != nil {
		tokens := c.Tokenizer.Encode(text)
		return windows(len(tokens), size, overlap, func(start, end int) (string, int) {
			return c.Tokenizer.Decode(tokens[start:end]), end - start
		})
	}

	runes := []rune(text)
	size, overlap = size*CharsPerToken, overlap*CharsPerToken
	return windows(len(runes), size, overlap, func(start, end int) (string, int) {
		return string(runes[start:end]), approxTokens(end - start)
	})
}

func windows(n, size, overlap int, slice func(start, end int) (string, int)) []Chunk {
	if n == 0 {
		return nil
	}
	step := size - overlap
	var out []Chunk
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		text, count := slice(start, end)
		out = append(out, Chunk{Index: len(out), Text: text, Start: start, End: end, TokenCount: count})
		if end == n {
			break
		}
	}
	return out
}

// CountTokens counts with the tokenizer, or approximates from rune length.
func CountTokens(tok Tokenizer, text string) int {
	if tok != nil {
		return len(tok.Encode(text))
	}
	return approxTokens(len([]rune(text)))
}

func approxTokens(runes int) int {
	return (runes + CharsPerToken - 1) / CharsPerToken
}
