// Package blob abstracts remote artifact storage.
package blob

import "context"

// Store uploads, retrieves, and deletes audio artifacts. Upload returns an
// opaque URI that later identifies the artifact to Download and Delete.
type Store interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	Download(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
}
