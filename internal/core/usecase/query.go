package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/textnorm"
)

const (
	MinQuestionLength = 3
	MaxQuestionLength = 500
	MaxTopK           = 10

	NotFoundAnswer = "I could not find relevant information to answer your question."
)

const systemInstructions = `You are a technical assistant answering questions using provided documents.

RULES:
1. Use ONLY the provided documents.
2. If a definition exists, quote or paraphrase the definition clearly.
3. Prefer definition sentences over general context.
4. Do not say information is missing if relevant sentences are present.
5. Be concise and factual.
6. ALWAYS answer in English only.`

type QueryUseCase struct {
	retriever    *Retriever
	generator    ports.AnswerGenerator
	previewChars int
}

func NewQueryUseCase(retriever *Retriever, generator ports.AnswerGenerator) *QueryUseCase {
	return &QueryUseCase{
		retriever:    retriever,
		generator:    generator,
		previewChars: textnorm.DefaultPreviewChars,
	}
}

func (uc *QueryUseCase) Answer(
	ctx context.Context,
	question string,
	topK int,
	filter domain.SearchFilter,
) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if err := validateQuestion(question, topK); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", err)
	}

	docs, err := uc.retriever.Retrieve(ctx, question, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve documents: %w", err)
	}

	if len(docs) == 0 {
		log.Ctx(ctx).Warn().Str("source", filter.Source).Msg("no_relevant_documents")
		return &domain.Answer{
			Text:    NotFoundAnswer,
			Sources: []domain.SourceCitation{},
		}, nil
	}

	text, err := uc.generator.Generate(ctx, systemInstructions, FormatContext(docs), question)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]domain.SourceCitation, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, domain.SourceCitation{
			Source:    doc.Chunk.Source,
			Page:      doc.Chunk.Page,
			Relevance: relevance(doc.Distance),
			Preview:   textnorm.Preview(doc.Chunk.Content, uc.previewChars),
		})
	}

	return &domain.Answer{
		Text:          text,
		Sources:       sources,
		RetrievedDocs: len(docs),
	}, nil
}

func validateQuestion(question string, topK int) error {
	n := utf8.RuneCountInString(question)
	switch {
	case n < MinQuestionLength:
		return fmt.Errorf("question must be at least %d characters", MinQuestionLength)
	case n > MaxQuestionLength:
		return fmt.Errorf("question must be at most %d characters", MaxQuestionLength)
	case topK < 0 || topK > MaxTopK:
		return fmt.Errorf("top_k must be between 1 and %d", MaxTopK)
	}
	return nil
}

// relevance maps a non-negative distance into (0,1]. Zero and missing
// distances have no comparable relevance.
func relevance(distance *float64) *float64 {
	if distance == nil || *distance <= 0 || math.IsNaN(*distance) || math.IsInf(*distance, 0) {
		return nil
	}
	v := math.Round(1/(1+*distance)*1000) / 1000
	return &v
}
