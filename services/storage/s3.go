// Package storagesvc archives generated files in an S3 compatible bucket.
package storagesvc

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/report"
)

// putter is the subset of the S3 API used here.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client putter
	bucket string
	logger core.Logger
}

var _ report.Archiver = (*S3Archiver)(nil)

// NewS3Archiver loads the AWS credentials from the default chain. It returns nil when no bucket
// is configured, leaving exports unarchived.
func NewS3Archiver(ctx context.Context, conf *core.Config, logger core.Logger) (*S3Archiver, error) {
	if !conf.Storage.Enabled() {
		return nil, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(conf.Storage.Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Storage.Endpoint)
		}
		o.UsePathStyle = conf.Storage.ForcePathStyle
	})
	return &S3Archiver{client: client, bucket: conf.Storage.Bucket, logger: logger}, nil
}

// Upload stores `content` under `key` and returns the key.
func (a *S3Archiver) Upload(ctx context.Context, key string, content []byte) (string, error) {
	ct := ContentType(key, content)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(ct),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading s3://%s/%s", a.bucket, key)
	}
	a.logger.Debug("archived file", map[string]interface{}{"key": key, "content_type": ct, "size": len(content)})
	return key, nil
}

// ContentType sniffs the content, falling back on the key extension for plain text.
func ContentType(key string, content []byte) string {
	mt := mimetype.Detect(content)
	if mt.Is("text/plain") {
		switch path.Ext(key) {
		case ".csv":
			return "text/csv; charset=utf-8"
		case ".json":
			return "application/json"
		}
	}
	return mt.String()
}
