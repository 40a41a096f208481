package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// S3API is the subset of the S3 client used to fetch corpus files.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader reads corpus sources (local paths or s3://bucket/key) and splits
// them into overlapping chunks. PDFs are read page by page; everything else
// is treated as plain text.
type Loader struct {
	s3       S3API
	splitter textsplitter.TextSplitter
}

func NewLoader(s3Client S3API, chunkSize, chunkOverlap int) *Loader {
	if chunkSize <= 0 {
		chunkSize = 600
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 6
	}
	return &Loader{
		s3: s3Client,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Load returns the non-empty chunks of source.
func (l *Loader) Load(ctx context.Context, source string) ([]string, error) {
	data, err := l.read(ctx, source)
	if err != nil {
		return nil, err
	}

	var loader documentloaders.Loader
	if strings.EqualFold(path.Ext(source), ".pdf") {
		loader = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	} else {
		loader = documentloaders.NewText(bytes.NewReader(data))
	}

	docs, err := loader.LoadAndSplit(ctx, l.splitter)
	if err != nil {
		return nil, fmt.Errorf("knowledge: split %s: %w", source, err)
	}
	return chunkContents(docs), nil
}

func chunkContents(docs []schema.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.TrimSpace(d.PageContent); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	bucket, key, isS3 := parseS3URI(source)
	if !isS3 {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("knowledge: read %s: %w", source, err)
		}
		return data, nil
	}
	if l.s3 == nil {
		return nil, errors.New("knowledge: s3 source configured without an s3 client")
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: s3 get %s: %w", source, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read s3 body %s: %w", source, err)
	}
	return data, nil
}

// parseS3URI splits s3://bucket/key.
func parseS3URI(source string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(source, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
