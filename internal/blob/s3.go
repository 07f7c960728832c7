package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	log "github.com/sjqzhang/seelog"
)

const s3PartSize = 1 << 24

type S3Config struct {
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint"`
	Prefix       string `json:"prefix"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	UsePathStyle bool   `json:"use_path_style"`
}

// S3 stores blobs as objects under an optional key prefix.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3(ctx context.Context, c S3Config) (*S3, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
	}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.UsePathStyle
	})
	return NewS3FromClient(client, c.Bucket, c.Prefix), nil
}

func NewS3FromClient(client *s3.Client, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = s3PartSize
		}),
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *S3) key(name string) *string {
	return aws.String(s.prefix + name)
}

func (s *S3) Put(ctx context.Context, name string, r io.Reader, overwrite bool) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if !overwrite {
		if _, err := s.Size(ctx, name); err == nil {
			return 0, ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}
	body := &countingReader{r: r}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
		Body:   body,
	})
	if err != nil {
		log.Error(fmt.Sprintf("s3 put %s: %v", name, err))
		// the object is only visible after a successful upload
		return 0, err
	}
	return body.n, nil
}

func (s *S3) Size(ctx context.Context, name string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
	})
	if err != nil {
		return 0, mapS3Error(err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3) Get(ctx context.Context, name string, w io.Writer, rng Range) error {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
	}
	if !rng.IsZero() {
		if rng.Length > 0 {
			in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))
		} else {
			in.Range = aws.String(fmt.Sprintf("bytes=%d-", rng.Offset))
		}
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return mapS3Error(err)
	}
	defer out.Body.Close()
	_, err = io.Copy(w, out.Body)
	return err
}

func (s *S3) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.key(name),
	})
	if err = mapS3Error(err); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		}
	}
	return err
}
