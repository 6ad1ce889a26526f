package upload

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/debemdeboas/the-folio/internal/editor"
)

const objectCacheControl = "public, max-age=31536000, immutable"

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	PublicURL       string
	AccessKeyID     string
	SecretAccessKey string
}

type S3Uploader struct { // implements Uploader
	client    objectPutter
	bucket    string
	publicURL string

	processor Processor
}

func NewS3Uploader(ctx context.Context, opts S3Options, processor Processor) (*S3Uploader, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = joinURL(opts.Endpoint, opts.Bucket)
	}

	return newS3Uploader(client, opts.Bucket, publicURL, processor), nil
}

func newS3Uploader(client objectPutter, bucket, publicURL string, processor Processor) *S3Uploader {
	return &S3Uploader{
		client:    client,
		bucket:    bucket,
		publicURL: publicURL,
		processor: processor,
	}
}

func (u *S3Uploader) Upload(ctx context.Context, att editor.Attachment) (string, error) {
	img, err := u.processor.Process(att)
	if err != nil {
		return "", err
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(img.Name),
		Body:          bytes.NewReader(img.Data),
		ContentLength: aws.Int64(int64(len(img.Data))),
		ContentType:   aws.String(ContentType),
		CacheControl:  aws.String(objectCacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", img.Name, err)
	}

	uploadLogger.Info().Str("block_id", string(att.BlockID)).Str("bucket", u.bucket).Str("key", img.Name).Msg("Image uploaded")
	return joinURL(u.publicURL, img.Name), nil
}
