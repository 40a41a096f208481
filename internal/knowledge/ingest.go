package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

const embedBatchSize = 64

// Ingester loads sources, embeds their chunks and publishes them to the
// repository and the in-memory index.
type Ingester struct {
	loader   *Loader
	embedder Embedder
	repo     Repository
	index    *MemoryIndex
	logger   *logging.Logger
}

// NewIngester wires the ingestion pipeline. repo may be nil, in which case
// chunks only live in the index.
func NewIngester(loader *Loader, embedder Embedder, repo Repository, index *MemoryIndex, logger *logging.Logger) *Ingester {
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingester{
		loader:   loader,
		embedder: embedder,
		repo:     repo,
		index:    index,
		logger:   logger.Component("knowledge"),
	}
}

// Ingest rebuilds corpus from sources and returns the number of chunks.
func (i *Ingester) Ingest(ctx context.Context, corpus string, sources []string) (int, error) {
	if len(sources) == 0 {
		return 0, errors.New("knowledge: no sources to ingest")
	}
	ctx, span := tracer.Start(ctx, "knowledge.ingest")
	defer span.End()

	var chunks []Chunk
	for _, source := range sources {
		texts, err := i.loader.Load(ctx, source)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		i.logger.Info("loaded and split source", "source", source, "chunks", len(texts))
		for _, text := range texts {
			chunks = append(chunks, Chunk{Source: source, Content: text})
		}
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		vecs, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("knowledge: embed chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return 0, errors.New("knowledge: embedder returned wrong number of vectors")
		}
		for j, v := range vecs {
			chunks[start+j].Embedding = v
		}
	}

	if i.repo != nil {
		if err := i.repo.ReplaceChunks(ctx, corpus, chunks); err != nil {
			return 0, err
		}
	}
	if i.index != nil {
		i.index.Replace(chunks)
	}
	i.logger.Info("knowledge corpus ingested", "corpus", corpus, "chunks", len(chunks))
	return len(chunks), nil
}

// Hydrate fills the index from the repository. It reports false when the
// corpus has not been ingested yet.
func (i *Ingester) Hydrate(ctx context.Context, corpus string) (bool, error) {
	if i.repo == nil || i.index == nil {
		return false, nil
	}
	chunks, err := i.repo.LoadChunks(ctx, corpus)
	if err != nil {
		return false, err
	}
	if len(chunks) == 0 {
		return false, nil
	}
	i.index.Replace(chunks)
	i.logger.Info("knowledge index hydrated", "corpus", corpus, "chunks", len(chunks))
	return true, nil
}
