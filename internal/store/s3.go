package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cachegate/cachegate/internal/config"
)

// s3Store adapts an S3-compatible bucket (including MinIO via a custom
// endpoint) to the Store capability. It holds a long-lived client and is
// immutable after construction.
type s3Store struct {
	client *s3.Client
	bucket string
}

func newS3Store(ctx context.Context, desc config.Store) (Store, error) {
	if desc.Endpoint != "" && !desc.AllowHTTP {
		if err := requireHTTPS(desc.Endpoint); err != nil {
			return nil, err
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(desc.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(desc.AccessKey, desc.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if desc.Endpoint != "" {
			o.BaseEndpoint = aws.String(desc.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &s3Store{client: client, bucket: desc.Bucket}, nil
}

func requireHTTPS(endpoint string) error {
	if len(endpoint) >= 7 && endpoint[:7] == "http://" {
		return fmt.Errorf("s3: endpoint %q uses plaintext HTTP but allow_http is not set", endpoint)
	}
	return nil
}

func (s *s3Store) Get(ctx context.Context, path string) (Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return Object{Bytes: body, ContentType: contentType}, nil
}

func (s *s3Store) Head(ctx context.Context, path string) (Meta, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Meta{}, ErrNotFound
		}
		return Meta{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return Meta{Size: size, ContentType: contentType}, nil
}

func (s *s3Store) Put(ctx context.Context, path string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr interface{ HTTPStatusCode() int }
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
