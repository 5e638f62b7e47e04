package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/kirillkom/pdf-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/logging"
)

type questions []string

func (q *questions) String() string { return strings.Join(*q, "; ") }

func (q *questions) Set(v string) error {
	*q = append(*q, v)
	return nil
}

func main() {
	var asked questions
	flag.Var(&asked, "q", "question to answer after indexing (repeatable)")
	source := flag.String("source", "", "source id to index under (default: sanitized file name)")
	topK := flag.Int("top-k", 0, "chunks per answer (default: RAG_TOP_K)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file.pdf\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	logging.SetupWriter(os.Stderr, "ingest", cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("config_invalid")
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *topK <= 0 {
		*topK = cfg.RAGTopK
	}

	if err := run(cfg, flag.Arg(0), *source, asked, *topK, os.Stdout); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, path, source string, asked []string, topK int, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if source == "" {
		source = usecase.SourceName(path)
	}
	logger := log.With().Str("source", source).Logger()
	ctx = logger.WithContext(ctx)

	pages, err := readPDF(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("pdf_read_failed")
		return err
	}
	if check := usecase.CheckText(pages); check.LikelyScanned {
		fmt.Fprintf(out, "warning: %s averages %d characters per page; it is likely scanned or image-only and needs OCR\n",
			path, check.AvgChars)
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Standalone())
	if err != nil {
		logger.Error().Err(err).Msg("bootstrap_failed")
		return err
	}
	defer app.Close()

	ids, err := app.ProcessUC.Ingest(ctx, pages, source, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		logger.Error().Err(err).Msg("ingest_failed")
		return err
	}
	fmt.Fprintf(out, "indexed %s: %d pages, %d chunks\n", source, len(pages), len(ids))

	for _, question := range asked {
		answer, err := app.QueryUC.Answer(ctx, question, topK, domain.SearchFilter{Source: source})
		if err != nil {
			logger.Error().Err(err).Str("question", question).Msg("answer_failed")
			return err
		}
		printAnswer(out, question, answer)
	}
	return nil
}

func readPDF(path string) ([]domain.PageContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New(path + " is a directory")
	}
	return pdftext.ReadPages(f, info.Size())
}

func printAnswer(out io.Writer, question string, answer *domain.Answer) {
	fmt.Fprintf(out, "\nQ: %s\nA: %s\n", question, answer.Text)
	for _, src := range answer.Sources {
		relevance := "n/a"
		if src.Relevance != nil {
			relevance = fmt.Sprintf("%.3f", *src.Relevance)
		}
		fmt.Fprintf(out, "  - %s p.%d (relevance %s)\n", src.Source, src.Page, relevance)
	}
}
