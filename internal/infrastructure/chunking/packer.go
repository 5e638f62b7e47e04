package chunking

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/textnorm"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 250

	// MinChunkLength is the shortest chunk worth persisting.
	MinChunkLength = 120
	// MinPageLength filters header/footer-only pages.
	MinPageLength = 80

	paragraphSeparator = "\n\n"
)

var paragraphSplitRe = regexp.MustCompile(`\n[ \t]*\n`)

// Packer packs paragraphs and sentences into chunks of bounded size.
type Packer struct {
	ChunkSize int
	Overlap   int
	MinLength int
}

func NewPacker(chunkSize, overlap int) *Packer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Packer{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		MinLength: MinChunkLength,
	}
}

// Pack splits normalized text into chunks no longer than ChunkSize, except
// when a single sentence is longer than ChunkSize on its own.
func (p *Packer) Pack(text string) []string {
	acc := accumulator{size: p.ChunkSize, overlap: p.Overlap}

	for _, paragraph := range splitParagraphs(text) {
		if textnorm.Len(paragraph) <= p.ChunkSize {
			acc.add(paragraph)
			continue
		}
		for _, sentence := range splitSentences(paragraph) {
			acc.add(sentence)
		}
	}
	acc.finish()

	out := make([]string, 0, len(acc.chunks))
	for _, chunk := range acc.chunks {
		chunk = textnorm.StripLeadingJunk(chunk)
		if textnorm.Len(chunk) < p.MinLength {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

type accumulator struct {
	size    int
	overlap int

	chunks  []string
	current []string
	length  int
	// seeded is set while current holds nothing but the overlap seed.
	seeded bool
}

func (a *accumulator) add(unit string) {
	unitLen := textnorm.Len(unit)
	if len(a.current) > 0 && a.length+len(paragraphSeparator)+unitLen > a.size {
		if !a.seeded {
			a.close()
		}
		if a.seeded && a.length+len(paragraphSeparator)+unitLen > a.size {
			a.reset()
		}
	}

	if len(a.current) > 0 {
		a.length += len(paragraphSeparator)
	}
	a.current = append(a.current, unit)
	a.length += unitLen
	a.seeded = false
}

func (a *accumulator) close() {
	chunk := strings.TrimSpace(strings.Join(a.current, paragraphSeparator))
	a.reset()
	if chunk == "" {
		return
	}
	a.chunks = append(a.chunks, chunk)

	if seed := overlapSeed(chunk, a.overlap); seed != "" {
		a.current = []string{seed}
		a.length = textnorm.Len(seed)
		a.seeded = true
	}
}

func (a *accumulator) finish() {
	if len(a.current) == 0 || a.seeded {
		a.reset()
		return
	}
	chunk := strings.TrimSpace(strings.Join(a.current, paragraphSeparator))
	if chunk != "" {
		a.chunks = append(a.chunks, chunk)
	}
	a.reset()
}

func (a *accumulator) reset() {
	a.current = nil
	a.length = 0
	a.seeded = false
}

// overlapSeed returns the tail of chunk that opens the next chunk. The tail is
// moved forward to the first sentence start inside it; a tail without any
// sentence start is used as is. The seed is always a proper suffix of chunk.
func overlapSeed(chunk string, overlap int) string {
	if overlap <= 0 || chunk == "" {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= overlap {
		return ""
	}

	start := len(runes) - overlap
	for pos := start; pos < len(runes); pos++ {
		if isSentenceStart(runes, pos) {
			return strings.TrimSpace(string(runes[pos:]))
		}
	}
	return strings.TrimSpace(string(runes[start:]))
}

func isSentenceStart(runes []rune, pos int) bool {
	if pos == 0 || unicode.IsSpace(runes[pos]) || !unicode.IsSpace(runes[pos-1]) {
		return false
	}
	i := pos - 1
	sawNewline := false
	for i >= 0 && unicode.IsSpace(runes[i]) {
		if runes[i] == '\n' {
			sawNewline = true
		}
		i--
	}
	if i < 0 {
		return false
	}
	return sawNewline || isTerminator(runes[i])
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func splitParagraphs(text string) []string {
	parts := paragraphSplitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitSentences cuts after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if !isTerminator(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}
