package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cryptguard/cryptguard/internal/common"
)

// S3Store keeps blobs in an S3-compatible bucket, addressed by the SHA-256
// digest of their content. Works against MinIO via BaseEndpoint.
type S3Store struct {
	client *s3.Client
	bucket string
}

type S3Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

// objectKey derives the content address. Pinning identical bytes twice is a
// harmless overwrite of the same object.
func objectKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *S3Store) Pin(ctx context.Context, name string, data []byte) (string, error) {
	key := objectKey(data)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"original-name": name},
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object: %v", common.ErrDependencyUnavailable, err)
	}
	return key, nil
}

func (s *S3Store) Fetch(ctx context.Context, cid string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cid),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("fetch %s: %w", cid, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("%w: get object %s: %v", common.ErrDependencyUnavailable, cid, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: get object %s: reading body: %v", common.ErrDependencyUnavailable, cid, err)
	}
	return data, nil
}

func (s *S3Store) Unpin(ctx context.Context, cid string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cid),
	})
	if err != nil {
		return fmt.Errorf("%w: delete object %s: %v", common.ErrDependencyUnavailable, cid, err)
	}
	return nil
}
