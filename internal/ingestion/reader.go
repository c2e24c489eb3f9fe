package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cardmarket-lab/internal/mapping"
)

// Format is an input file encoding.
type Format string

const (
	FormatJSON   Format = "json"   // array or {"items": [...]}
	FormatNDJSON Format = "ndjson" // one object per line
	FormatCSV    Format = "csv"    // header row then values
)

// DetectFormat picks a format from the file extension. Unknown extensions
// are read as JSON.
func DetectFormat(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	case ".csv":
		return FormatCSV
	}
	return FormatJSON
}

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 4 << 20

// DecodeRecords reads all records from r.
func DecodeRecords(r io.Reader, format Format) ([]mapping.Record, error) {
	switch format {
	case FormatNDJSON:
		return decodeNDJSON(r)
	case FormatCSV:
		return decodeCSV(r)
	default:
		return decodeJSON(r)
	}
}

func decodeJSON(r io.Reader) ([]mapping.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var out []mapping.Record
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
		return out, nil
	}

	var obj mapping.Record
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	items, ok := obj["items"]
	if !ok {
		return []mapping.Record{obj}, nil
	}
	list, ok := items.([]any)
	if !ok {
		return nil, fmt.Errorf("decode json object: items is %T, want array", items)
	}
	out := make([]mapping.Record, 0, len(list))
	for i, it := range list {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode json object: items[%d] is %T, want object", i, it)
		}
		out = append(out, mapping.Record(m))
	}
	return out, nil
}

func decodeNDJSON(r io.Reader) ([]mapping.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var out []mapping.Record
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		rec, err := mapping.DecodeRecord(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ndjson: %w", err)
	}
	return out, nil
}

func decodeCSV(r io.Reader) ([]mapping.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var out []mapping.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rec := make(mapping.Record, len(header))
		for i, v := range row {
			if i >= len(header) || header[i] == "" || strings.TrimSpace(v) == "" {
				continue
			}
			rec[header[i]] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

// S3API is the subset of the S3 client used by RecordReader.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// RecordReader loads records from local files or s3://bucket/key objects.
type RecordReader struct {
	s3 S3API
}

// NewRecordReader creates a reader. client may be nil when no S3 inputs
// are used.
func NewRecordReader(client S3API) *RecordReader {
	return &RecordReader{s3: client}
}

// Read loads every record at location.
func (r *RecordReader) Read(ctx context.Context, location string) ([]mapping.Record, error) {
	if bucket, key, ok := parseS3URI(location); ok {
		return r.readS3(ctx, bucket, key)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	defer f.Close()

	recs, err := DecodeRecords(f, DetectFormat(location))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return recs, nil
}

func (r *RecordReader) readS3(ctx context.Context, bucket, key string) ([]mapping.Record, error) {
	if r.s3 == nil {
		return nil, fmt.Errorf("s3://%s/%s: no s3 client configured", bucket, key)
	}
	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	recs, err := DecodeRecords(out.Body, DetectFormat(key))
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
	}
	return recs, nil
}

// parseS3URI splits "s3://bucket/key".
func parseS3URI(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// S3Options configure NewS3Client.
type S3Options struct {
	Region    string
	Endpoint  string // custom endpoint, e.g. a MinIO server; enables path-style addressing
	AccessKey string // static credentials; empty uses the default chain
	SecretKey string
}

// NewS3Client builds an S3 client from the default AWS configuration chain.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
