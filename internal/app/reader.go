package app

import (
	"context"
	"strings"

	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/ingestion"
)

// NewRecordReader returns a reader for locations. An S3 client is created
// only when one of them is an s3:// URI.
func NewRecordReader(ctx context.Context, cfg *config.Config, locations ...string) (*ingestion.RecordReader, error) {
	for _, loc := range locations {
		if !strings.HasPrefix(loc, "s3://") {
			continue
		}
		client, err := ingestion.NewS3Client(ctx, ingestion.S3Options{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return ingestion.NewRecordReader(client), nil
	}
	return ingestion.NewRecordReader(nil), nil
}

// Limit truncates records to at most n rows; n <= 0 keeps all.
func Limit[T any](records []T, n int) []T {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}
