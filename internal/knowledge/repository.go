package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

const chunksKeyPrefix = "leadagent:knowledge:"

var tracer = otel.Tracer("leadagent.internal.knowledge")

// Chunk is one embedded slice of a source document.
type Chunk struct {
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Repository persists embedded chunks per corpus so restarts do not re-embed.
type Repository interface {
	ReplaceChunks(ctx context.Context, corpus string, chunks []Chunk) error
	LoadChunks(ctx context.Context, corpus string) ([]Chunk, error)
}

// RedisRepository stores chunks as JSON in a Redis list.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	if client == nil {
		panic("knowledge: redis client cannot be nil")
	}
	return &RedisRepository{client: client}
}

// ReplaceChunks overwrites the corpus atomically.
func (r *RedisRepository) ReplaceChunks(ctx context.Context, corpus string, chunks []Chunk) error {
	ctx, span := tracer.Start(ctx, "knowledge.repository.replace")
	defer span.End()

	args := make([]any, 0, len(chunks))
	for _, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("knowledge: marshal chunk: %w", err)
		}
		args = append(args, data)
	}

	key := chunksKey(corpus)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(args) > 0 {
		pipe.RPush(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("knowledge: replace chunks: %w", err)
	}
	return nil
}

func (r *RedisRepository) LoadChunks(ctx context.Context, corpus string) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "knowledge.repository.load")
	defer span.End()

	raw, err := r.client.LRange(ctx, chunksKey(corpus), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("knowledge: load chunks: %w", err)
	}

	out := make([]Chunk, 0, len(raw))
	for _, item := range raw {
		var c Chunk
		if err := json.Unmarshal([]byte(item), &c); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func chunksKey(corpus string) string {
	return chunksKeyPrefix + corpus
}
