package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Options configures an S3Backup. Region and the static keys are optional.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	Password  string
}

// S3Backup uploads originals encrypted with AES-GCM.
type S3Backup struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	password string
}

// NewS3Backup loads the AWS config, preferring static keys when given.
func NewS3Backup(ctx context.Context, opts S3Options) (*S3Backup, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backup: bucket not set")
	}
	if opts.Password == "" {
		return nil, ErrNoPassword
	}
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &S3Backup{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		password: opts.Password,
	}, nil
}

func (b *S3Backup) key(jobID, name string) string {
	return path.Join(b.prefix, safeName(jobID), safeName(filepath.Base(name)))
}

func (b *S3Backup) Save(ctx context.Context, jobID, name string, r io.Reader) (Ref, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Ref{}, fmt.Errorf("read original: %w", err)
	}
	sealed, err := seal(data, b.password)
	if err != nil {
		return Ref{}, err
	}
	key := b.key(jobID, name)
	out, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(sealed),
		Metadata: map[string]string{
			"name":              filepath.Base(name),
			"encrypted":         "true",
			"encryption-format": gcmMagic,
			"original-size":     strconv.Itoa(len(data)),
		},
	})
	if err != nil {
		return Ref{}, fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("job_id", jobID).Str("key", key).Str("location", out.Location).
		Int("size", len(data)).Msg("original backed up to s3")
	return Ref{Location: "s3://" + b.bucket + "/" + key, Size: int64(len(data))}, nil
}

func (b *S3Backup) Restore(ctx context.Context, ref Ref, w io.Writer) error {
	key := strings.TrimPrefix(ref.Location, "s3://"+b.bucket+"/")
	res, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download from S3: %w", err)
	}
	defer res.Body.Close()
	sealed, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	plain, err := open(sealed, b.password)
	if err != nil {
		return err
	}
	_, err = w.Write(plain)
	return err
}
