package embedding

import (
	"strings"
	"testing"
)

// wordTokenizer treats each space-separated word as one token.
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) []int {
	words := strings.Fields(text)
	out := make([]int, len(words))
	for i := range words {
		out[i] = i
	}
	return out
}

func (wordTokenizer) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = "w" + string(rune('0'+t%10))
	}
	return strings.Join(parts, " ")
}

func TestChunkOverlapTokens(t *testing.T) {
	text := strings.Repeat("word ", 2500)
	chunks := Chunker{Tokenizer: wordTokenizer{}, Size: 1000, Overlap: 200}.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("chunks: want=3 got=%d", len(chunks))
	}
	for i := 0; i < len(chunks)-1; i++ {
		if chunks[i+1].Start >= chunks[i].End {
			t.Fatalf("chunk %d does not overlap next: %+v %+v", i, chunks[i], chunks[i+1])
		}
		if chunks[i].End-chunks[i+1].Start != 200 {
			t.Fatalf("overlap: want=200 got=%d", chunks[i].End-chunks[i+1].Start)
		}
		if chunks[i].TokenCount != 1000 {
			t.Fatalf("window: want=1000 got=%d", chunks[i].TokenCount)
		}
	}
	last := chunks[len(chunks)-1]
	if last.End != 2500 || last.Start != 1600 {
		t.Fatalf("last chunk: got=%+v", last)
	}
}

func TestChunkCharacterFallback(t *testing.T) {
	text := strings.Repeat("a", 9000)
	chunks := Chunker{Size: 1000, Overlap: 200}.Split(text)

	// 4000-rune window advancing 3200 runes.
	if len(chunks) != 3 {
		t.Fatalf("chunks: want=3 got=%d", len(chunks))
	}
	if chunks[0].End != 4000 || chunks[1].Start != 3200 || chunks[2].End != 9000 {
		t.Fatalf("offsets: got=%+v", chunks)
	}
	if chunks[0].TokenCount != 1000 {
		t.Fatalf("approx tokens: want=1000 got=%d", chunks[0].TokenCount)
	}
	for i := range chunks {
		if chunks[i].Index != i {
			t.Fatalf("index: want=%d got=%d", i, chunks[i].Index)
		}
	}
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	chunks := Chunker{}.Split("short legal note")
	if len(chunks) != 1 || chunks[0].Text != "short legal note" {
		t.Fatalf("chunks: got=%+v", chunks)
	}
	if got := (Chunker{}).Split(""); got != nil {
		t.Fatalf("empty text: want nil got=%v", got)
	}
}

func TestCountTokensFallback(t *testing.T) {
	if got := CountTokens(nil, "abcdefghi"); got != 3 {
		t.Fatalf("CountTokens: want=3 got=%d", got)
	}
	if got := CountTokens(wordTokenizer{}, "one two three"); got != 3 {
		t.Fatalf("CountTokens tokenizer: want=3 got=%d", got)
	}
}
