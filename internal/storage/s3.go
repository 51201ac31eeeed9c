// Package storage uploads profile images to an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/thereayou/abstrio/internal/apperror"
)

const Folder = "profile-images"

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket        string
	Region        string
	Endpoint      string // empty for AWS itself
	AccessKey     string
	SecretKey     string
	PublicBaseURL string // overrides the derived object URL
	Timeout       time.Duration
}

type S3Store struct {
	client  objectPutter
	cfg     Config
	now     func() time.Time
	timeout time.Duration
}

func New(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(client, cfg), nil
}

func newStore(client objectPutter, cfg Config) *S3Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &S3Store{client: client, cfg: cfg, now: time.Now, timeout: timeout}
}

// ImageContentType returns the stored content type for filename, or false if
// the extension is not an accepted image format.
func ImageContentType(filename string) (string, bool) {
	ct, ok := allowedExtensions[strings.ToLower(path.Ext(filename))]
	return ct, ok
}

// Upload stores body under a fresh key in the profile image folder and
// returns the object's URL.
func (s *S3Store) Upload(ctx context.Context, filename, contentType string, body io.Reader, size int64) (string, error) {
	ct, ok := ImageContentType(filename)
	if !ok {
		return "", apperror.Validation("only jpg, jpeg and png images are allowed")
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ct
	}

	key := s.objectKey(filename)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", apperror.Upstream("upload failed", err)
	}
	return s.objectURL(key), nil
}

func (s *S3Store) objectKey(filename string) string {
	d := s.now()
	return fmt.Sprintf("%s/%d/%02d/%s%s", Folder, d.Year(), d.Month(), uuid.New(), strings.ToLower(path.Ext(filename)))
}

func (s *S3Store) objectURL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint != "":
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
}
