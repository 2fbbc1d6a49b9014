package fio

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dbbackup/internal/xerrors"
)

// S3ArchiveConfig configures mirroring of archived WAL segments to S3
// for durability beyond the local archive directory.
type S3ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
}

// S3Archive mirrors WAL segments the archiver already wrote locally.
// It is consulted only by the WAL Waiter/archiver, never by the core
// Data-File Engine or Catalog Store.
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archive builds an S3 client from cfg.
func NewS3Archive(ctx context.Context, cfg S3ArchiveConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("fio: S3 archive bucket is required")
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		provider := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithCredentialsProvider(provider), awsconfig.WithRegion(cfg.Region))
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindConfig, xerrors.SeverityFatal, err, "load AWS config for S3 archive")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Archive{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (a *S3Archive) key(segmentName string) string {
	if a.prefix == "" {
		return segmentName
	}
	return a.prefix + "/" + segmentName
}

// Mirror uploads the local WAL segment at localPath (named segmentName
// in the archive) to the configured S3 bucket/prefix.
func (a *S3Archive) Mirror(ctx context.Context, localPath, segmentName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "open WAL segment for S3 mirror")
	}
	defer f.Close()

	uploader := manager.NewUploader(a.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(segmentName)),
		Body:   f,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityWarning, err, "upload WAL segment to S3").WithRetryable(true)
	}
	return nil
}

// Fetch downloads segmentName from S3 into localPath, for restore-time
// or WAL-wait fallback when the local/remote archive doesn't have it.
func (a *S3Archive) Fetch(ctx context.Context, segmentName, localPath string) error {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(segmentName)),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityWarning, err, "fetch WAL segment from S3").WithRetryable(true)
	}
	defer out.Body.Close()

	dst, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "create local WAL segment for S3 fetch")
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(out.Body); err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "write fetched WAL segment")
	}
	return dst.Sync()
}
