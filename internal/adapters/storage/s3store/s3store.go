// Package s3store implements ports.StorageProvider on Amazon S3 (or any
// S3-compatible endpoint).
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"manimrender/internal/ports"
)

// API is the subset of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient the store uses.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options configures New.
type Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	// Endpoint switches to path-style addressing against a custom endpoint.
	Endpoint string
	// PublicBaseURL overrides https://<bucket>.s3.amazonaws.com in returned URLs.
	PublicBaseURL string
}

// Store is an S3-backed storage provider.
type Store struct {
	api        API
	presigner  Presigner
	bucket     string
	publicBase string
}

// New builds a Store from the default AWS config chain. Static credentials
// are used when both keys are given.
func New(ctx context.Context, opt Options) (*Store, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opt.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opt.Region))
	}
	if opt.AccessKeyID != "" && opt.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewStore(client, s3.NewPresignClient(client), opt.Bucket, opt.PublicBaseURL), nil
}

// NewStore wires a Store around existing clients.
func NewStore(api API, presigner Presigner, bucket, publicBaseURL string) *Store {
	return &Store{
		api:        api,
		presigner:  presigner,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *Store) Provider() string { return "s3" }

// PublicURL returns the virtual-hosted URL of key.
func (s *Store) PublicURL(objectKey string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + objectKey
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, objectKey)
}

func (s *Store) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(in.ObjectKey),
		Body:   in.Reader,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.Size > 0 {
		input.ContentLength = aws.Int64(in.Size)
	}

	if _, err := s.api.PutObject(ctx, input); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("s3 put %s/%s: %w", s.bucket, in.ObjectKey, err)
	}

	return ports.PutObjectOutput{
		ObjectKey: in.ObjectKey,
		Size:      in.Size,
		URL:       s.PublicURL(in.ObjectKey),
	}, nil
}

func (s *Store) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, fmt.Errorf("s3 get %s/%s: %w", s.bucket, objectKey, err)
	}
	return out.Body, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), nil
}

func (s *Store) DeleteObject(ctx context.Context, objectKey string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", s.bucket, objectKey, err)
	}
	return nil
}

func (s *Store) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("s3 presign %s/%s: %w", s.bucket, objectKey, err)
	}
	return ports.SignedURLOutput{URL: req.URL, ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}
