package storage

import (
	"context"
	"fmt"

	"github.com/sdejongh/syncplan/pkg/models"
)

// Options carries per-backend connection settings
type Options struct {
	SFTP SFTPConfig
	S3   S3Config
}

// Open returns the destination backend for a resolved endpoint
func Open(ctx context.Context, ep Endpoint, opts Options) (Backend, error) {
	switch ep.Kind {
	case models.BackendLocal:
		return NewLocalDestination(ep.Path)
	case models.BackendRemote:
		return NewSFTP(ctx, ep, opts.SFTP)
	case models.BackendObjectStore:
		return NewS3(ctx, ep, opts.S3)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedEndpoint, ep.Kind)
	}
}
