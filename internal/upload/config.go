package upload

import (
	"context"
	"os"

	"github.com/debemdeboas/the-folio/internal/config"
)

// FromConfig builds the uploader for the configured backend. S3 credentials are
// read from the environment.
func FromConfig(ctx context.Context, cfg config.UploadsConfig) (Uploader, error) {
	processor := Processor{MaxWidth: cfg.MaxWidth, MaxBytes: cfg.MaxBytes, MaxPixels: cfg.MaxPixels}

	switch cfg.Backend {
	case config.UploadsS3:
		return NewS3Uploader(ctx, S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			PublicURL:       cfg.S3.PublicURL,
			AccessKeyID:     os.Getenv(config.EnvS3AccessKeyID),
			SecretAccessKey: os.Getenv(config.EnvS3SecretAccessKey),
		}, processor)
	default:
		return NewFSUploader(cfg.Dir, cfg.BaseURL, processor), nil
	}
}
