// Package s3 stores backup documents as JSON objects in an S3 compatible
// bucket (AWS S3, Cloudflare R2, MinIO).
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"smartbudget/internal/backup"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// API is the part of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. an R2 account URL.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type Store struct {
	client API
	bucket string
}

var _ backup.DocumentStore = (*Store)(nil)

func New(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewFromConfig builds an S3 client from the default AWS chain, with static
// credentials and a custom endpoint when configured.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     cfg.AccessKeyID,
					SecretAccessKey: cfg.SecretAccessKey,
				}, nil
			})))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, cfg.Bucket), nil
}

// ObjectKey is where a document lives in the bucket.
func ObjectKey(collection, key string) string {
	return collection + "/" + key + ".json"
}

func (s *Store) Put(ctx context.Context, collection, key string, doc backup.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(collection, key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Merge reads, patches and rewrites the object. Concurrent merges to the same
// key are last-writer-wins.
func (s *Store) Merge(ctx context.Context, collection, key string, fields backup.Document) error {
	doc, err := s.Get(ctx, collection, key)
	if errors.Is(err, backup.ErrNotFound) {
		doc = backup.Document{}
	} else if err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}
	return s.Put(ctx, collection, key, doc)
}

func (s *Store) Get(ctx context.Context, collection, key string) (backup.Document, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(collection, key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, backup.ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc backup.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
