package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/textnorm"
)

func proseParagraph(seed, sentences int) string {
	parts := make([]string, 0, sentences)
	for i := 0; i < sentences; i++ {
		parts = append(parts, fmt.Sprintf("Sentence %d.%d explains how retrieval pipelines keep answers grounded in documents.", seed, i))
	}
	return strings.Join(parts, " ")
}

func proseText(paragraphs, sentences int) string {
	out := make([]string, 0, paragraphs)
	for i := 0; i < paragraphs; i++ {
		out = append(out, proseParagraph(i, sentences))
	}
	return strings.Join(out, "\n\n")
}

func TestPackRespectsChunkSizeAndMinimum(t *testing.T) {
	text := strings.Join([]string{
		proseParagraph(1, 3),
		proseParagraph(2, 30),
		proseParagraph(3, 1),
		proseParagraph(4, 12),
		proseParagraph(5, 7),
	}, "\n\n")

	packer := NewPacker(600, 120)
	chunks := packer.Pack(text)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if textnorm.Len(chunk) < MinChunkLength {
			t.Fatalf("chunk %d shorter than minimum: %d", i, textnorm.Len(chunk))
		}
		if textnorm.Len(chunk) > 600 {
			t.Fatalf("chunk %d exceeds chunk size: %d", i, textnorm.Len(chunk))
		}
	}
}

func TestPackEmitsOversizedSentenceWhole(t *testing.T) {
	sentence := "This sentence " + strings.Repeat("keeps going without any terminator ", 60) + "and finally ends."
	packer := NewPacker(500, 100)

	chunks := packer.Pack(sentence)
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(sentence) {
		t.Fatalf("expected sentence to be emitted unsplit")
	}
}

func TestPackOversizedChunksAreSingleSentences(t *testing.T) {
	long := "Long " + strings.Repeat("words ", 150) + "end."
	text := proseParagraph(1, 4) + " " + long + " " + proseParagraph(2, 4)

	chunks := NewPacker(400, 80).Pack(text)
	for i, chunk := range chunks {
		if textnorm.Len(chunk) <= 400 {
			continue
		}
		if len(splitSentences(chunk)) != 1 || strings.Contains(chunk, paragraphSeparator) {
			t.Fatalf("chunk %d exceeds size but is not a single sentence: %q", i, chunk)
		}
	}
}

func TestPackOverlapSeedIsSuffixOfPreviousChunk(t *testing.T) {
	text := proseText(6, 5)
	chunks := NewPacker(1000, 250).Pack(text)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev, next := chunks[i-1], chunks[i]
		idx := strings.Index(next, paragraphSeparator)
		if idx < 0 {
			t.Fatalf("chunk %d has no seed separator", i)
		}
		seed := next[:idx]
		if !strings.HasSuffix(prev, seed) {
			t.Fatalf("seed of chunk %d is not a suffix of chunk %d: %q", i, i-1, seed)
		}
		if textnorm.Len(seed) > 250 {
			t.Fatalf("seed of chunk %d longer than overlap: %d", i, textnorm.Len(seed))
		}
		if !strings.HasPrefix(seed, "Sentence ") {
			t.Fatalf("seed of chunk %d starts mid-sentence: %q", i, seed)
		}
	}
}

func TestPackWithoutOverlapHasNoSharedText(t *testing.T) {
	chunks := NewPacker(1000, 0).Pack(proseText(6, 5))
	for i := 1; i < len(chunks); i++ {
		first := splitSentences(chunks[i])[0]
		if strings.Contains(chunks[i-1], first) {
			t.Fatalf("chunk %d repeats text of chunk %d without overlap", i, i-1)
		}
	}
}

func TestPackIsDeterministic(t *testing.T) {
	text := proseText(8, 6)
	first := NewPacker(1500, 250).Pack(text)
	second := NewPacker(1500, 250).Pack(text)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestPackStripsLeadingEllipsis(t *testing.T) {
	text := "... " + proseParagraph(1, 3)
	chunks := NewPacker(1500, 250).Pack(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "Sentence") {
		t.Fatalf("expected leading ellipsis stripped, got %q", chunks[0][:12])
	}
}

func TestPackDropsShortText(t *testing.T) {
	if chunks := NewPacker(1500, 250).Pack("Too short to matter."); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestOverlapSeedFallsBackToRawTail(t *testing.T) {
	chunk := strings.Repeat("x", 50) + " " + strings.Repeat("word ", 30)
	seed := overlapSeed(strings.TrimSpace(chunk), 40)
	if seed == "" || !strings.HasSuffix(strings.TrimSpace(chunk), seed) {
		t.Fatalf("expected raw tail seed, got %q", seed)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? Four")
	want := []string{"One.", "Two!", "Three?", "Four"}
	if len(got) != len(want) {
		t.Fatalf("splitSentences() = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}
