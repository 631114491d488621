package blob

import (
	"context"
	"io"
	"time"

	"github.com/clipforge/exportd/internal/platform/dbctx"
)

// Category partitions the bucket namespace by where an object sits in a
// job's lifecycle: a caller-supplied input, an artifact a driver produces
// partway through a pipeline, or the final deliverable.
type Category string

const (
	CategorySource       Category = "source"
	CategoryIntermediate Category = "intermediate"
	CategoryOutput       Category = "output"
)

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

// Store is the seam between drivers/API handlers and whatever object
// storage backs source videos, intermediate artifacts, and finished
// exports. Every method is keyed by Category so callers never have to
// know bucket names.
type Store interface {
	UploadFile(dbc dbctx.Context, category Category, key string, file io.Reader) error
	DeleteFile(dbc dbctx.Context, category Category, key string) error
	ReplaceFile(dbc dbctx.Context, category Category, key string, newFile io.Reader) error
	DownloadFile(ctx context.Context, category Category, key string) (io.ReadCloser, error)
	OpenRangeReader(ctx context.Context, category Category, key string, offset, length int64) (io.ReadCloser, error)
	GetObjectAttrs(ctx context.Context, category Category, key string) (*ObjectAttrs, error)
	CopyObject(ctx context.Context, category Category, srcKey, dstKey string) error
	ListKeys(ctx context.Context, category Category, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, category Category, prefix string) error
	GetPublicURL(ctx context.Context, category Category, key string) (string, error)
}
