// Package langchain serves generation and embeddings from any
// OpenAI-compatible endpoint through langchaingo.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
}

type Provider struct {
	model       *openai.LLM
	embedder    *embeddings.EmbedderImpl
	temperature float64
	executor    *resilience.Executor
}

type Option func(*Provider)

func WithResilienceExecutor(executor *resilience.Executor) Option {
	return func(p *Provider) {
		p.executor = executor
	}
}

func New(cfg Config, opts ...Option) (*Provider, error) {
	clientOpts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.EmbeddingModel != "" {
		clientOpts = append(clientOpts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}

	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	p := &Provider{
		model:       model,
		embedder:    embedder,
		temperature: cfg.Temperature,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Generate(ctx context.Context, systemInstructions, contextText, question string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, llm.SystemPrompt(systemInstructions, contextText)),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}

	var answer string
	err := p.run(ctx, "generate", func(ctx context.Context) error {
		resp, err := p.model.GenerateContent(ctx, messages, llms.WithTemperature(p.temperature))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty completion")
		}
		answer = strings.TrimSpace(resp.Choices[0].Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	log.Ctx(ctx).Debug().Int("answer_chars", len(answer)).Msg("completion_received")
	return answer, nil
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := p.run(ctx, "embed", func(ctx context.Context) error {
		out, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("got %d vectors for %d inputs", len(out), len(texts))
		}
		vectors = out
		return nil
	})
	return vectors, err
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := p.run(ctx, "embed_query", func(ctx context.Context) error {
		out, err := p.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return err
		}
		vector = out
		return nil
	})
	return vector, err
}

func (p *Provider) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := p.executor.Execute(ctx, "openai."+operation, fn, classifyProviderError)
	if err == nil {
		return nil
	}
	return resilience.Temporary("openai "+operation, fmt.Errorf("openai %s: %w", operation, err), classifyProviderError)
}

// langchaingo reports upstream failures only as text.
var upstreamStatus = regexp.MustCompile(`status code: (\d{3})`)

// classifyProviderError applies the shared HTTP status policy to the status
// embedded in langchaingo's error text, so a bad key or model name is not retried.
func classifyProviderError(err error) resilience.Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Ignored
	}
	if m := upstreamStatus.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return resilience.ClassifyStatus(code)
	}
	return resilience.ClassifyHTTP(err)
}
