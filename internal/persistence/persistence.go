// Package persistence implements the append-only opportunity store of
// spec.md §6: {id, t_detected, kind, payload_json} records, written
// best-effort (loss on crash is acceptable) to either a rotated local NDJSON
// file or an S3 bucket, selected by PERSIST_BACKEND.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cryptoflow/internal/logger"
	"cryptoflow/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Record is the durable representation of one detected opportunity.
type Record struct {
	ID         string          `json:"id"`
	TDetected  time.Time       `json:"t_detected"`
	Kind       string          `json:"kind"`
	PayloadRaw json.RawMessage `json:"payload_json"`
}

func toRecord(opp model.Opportunity) (Record, error) {
	payload, err := json.Marshal(opp)
	if err != nil {
		return Record{}, fmt.Errorf("marshal opportunity payload: %w", err)
	}
	return Record{
		ID:         opp.ID,
		TDetected:  opp.TDetected,
		Kind:       string(opp.Kind),
		PayloadRaw: payload,
	}, nil
}

// FileSink appends one NDJSON line per opportunity to a local file rotated
// with lumberjack, the same library the teacher uses for rotated log output.
type FileSink struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	log    *logger.Log
}

// NewFileSink opens (creating if needed) path for append, rotating at 100MB
// and retaining 30 days of rotated files, compressed.
func NewFileSink(path string) *FileSink {
	return &FileSink{
		writer: &lumberjack.Logger{
			Filename: path,
			MaxSize:  100,
			MaxAge:   30,
			Compress: true,
		},
		log: logger.GetLogger(),
	}
}

// Append writes one NDJSON line for opp. Best-effort: callers treat a
// returned error as a downstream fault per spec.md §7 and drop the record.
func (f *FileSink) Append(_ context.Context, opp model.Opportunity) error {
	rec, err := toRecord(opp)
	if err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal persistence record: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.writer.Write(line); err != nil {
		return fmt.Errorf("write persistence record: %w", err)
	}
	logger.IncrementPersistWrite(len(line))
	return nil
}

// Close flushes and closes the underlying rotated file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer.Close()
}

// S3Sink writes one object per opportunity to an S3 bucket, keyed by
// detection id, using a plain PutObject call — this system's persistence
// need is a small append-only audit log, not a columnar data lake, so it
// uses the S3 object API directly rather than S3 Tables/Iceberg.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Log
}

// NewS3Sink loads the default AWS configuration (region/credentials from the
// environment or instance role) and returns a sink targeting bucket.
func NewS3Sink(ctx context.Context, bucket, prefix, region string) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	return &S3Sink{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		log:    logger.GetLogger(),
	}, nil
}

// Append PUTs opp's JSON record as a single object keyed
// "<prefix>/<kind>/<id>.json".
func (s *S3Sink) Append(ctx context.Context, opp model.Opportunity) error {
	rec, err := toRecord(opp)
	if err != nil {
		return err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal persistence record: %w", err)
	}

	key := rec.ID
	if key == "" {
		key = uuid.NewString()
	}
	objectKey := fmt.Sprintf("%s/%s/%s.json", s.prefix, rec.Kind, key)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put opportunity object: %w", err)
	}
	logger.IncrementPersistWrite(len(body))
	return nil
}
