package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/debemdeboas/the-folio/internal/editor"
)

type FSUploader struct { // implements Uploader
	dir     string
	baseURL string

	processor Processor
}

func NewFSUploader(dir, baseURL string, processor Processor) *FSUploader {
	return &FSUploader{
		dir:       dir,
		baseURL:   baseURL,
		processor: processor,
	}
}

// Dir is the directory the server exposes under the base URL.
func (u *FSUploader) Dir() string {
	return u.dir
}

func (u *FSUploader) Upload(ctx context.Context, att editor.Attachment) (string, error) {
	img, err := u.processor.Process(att)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	path := filepath.Join(u.dir, img.Name)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	uploadLogger.Info().Str("block_id", string(att.BlockID)).Str("path", path).Msg("Image stored")
	return joinURL(u.baseURL, img.Name), nil
}
