// Package gcs implements a result store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/newsworthy/news-agent/internal/news"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "results".
	Prefix string
}

// Store writes aggregates as JSON objects under the configured bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ news.ResultStore = (*Store)(nil)

// New creates a GCS-backed result store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Store uploads the aggregate and returns a gs:// URI.
func (s *Store) Store(ctx context.Context, jobID string, agg news.Aggregate) (string, error) {
	object, err := s.objectName(jobID)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(agg)
	if err != nil {
		return "", news.NewError(news.KindStorage, "encode aggregate", err)
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", news.NewError(news.KindStorage, "upload aggregate",
				fmt.Errorf("%w (close writer: %v)", err, closeErr))
		}
		return "", news.NewError(news.KindStorage, "upload aggregate", err)
	}
	if err := writer.Close(); err != nil {
		return "", news.NewError(news.KindStorage, "close object writer", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Retrieve downloads and decodes a stored aggregate.
func (s *Store) Retrieve(ctx context.Context, jobID string) (news.Aggregate, error) {
	object, err := s.objectName(jobID)
	if err != nil {
		return news.Aggregate{}, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return news.Aggregate{}, news.Errorf(news.KindNotFound, "no result for job %s", jobID)
		}
		return news.Aggregate{}, news.NewError(news.KindStorage, "open result object", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return news.Aggregate{}, news.NewError(news.KindStorage, "download result object", err)
	}
	var agg news.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return news.Aggregate{}, news.NewError(news.KindStorage, "decode result object", err)
	}
	return agg, nil
}

func (s *Store) objectName(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", news.Errorf(news.KindStorage, "job id is required")
	}
	if strings.ContainsAny(jobID, "/\\") {
		return "", news.Errorf(news.KindStorage, "job id must not contain path separators")
	}
	return path.Join(s.prefix, jobID+".json"), nil
}
