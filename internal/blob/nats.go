package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
)

const natsScheme = "nats://"

// NATSStore keeps artifacts in a JetStream object store bucket, so a bus-only
// deployment needs no shared filesystem. URIs are nats://<bucket>/<key>.
type NATSStore struct {
	bucket string
	os     nats.ObjectStore
}

func NewNATSStore(js nats.JetStreamContext, bucket string) (*NATSStore, error) {
	store, err := js.ObjectStore(bucket)
	if err != nil {
		store, err = js.CreateObjectStore(&nats.ObjectStoreConfig{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("open object store bucket %q: %w", bucket, err)
		}
	}
	return &NATSStore{bucket: bucket, os: store}, nil
}

func (s *NATSStore) Upload(_ context.Context, localPath, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	if _, err := s.os.Put(&nats.ObjectMeta{Name: key}, file); err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return natsScheme + s.bucket + "/" + key, nil
}

func (s *NATSStore) Download(_ context.Context, uri string) ([]byte, error) {
	key, err := s.key(uri)
	if err != nil {
		return nil, err
	}
	data, err := s.os.GetBytes(key)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	return data, nil
}

func (s *NATSStore) Delete(_ context.Context, uri string) error {
	key, err := s.key(uri)
	if err != nil {
		return err
	}
	if err := s.os.Delete(key); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (s *NATSStore) key(uri string) (string, error) {
	prefix := natsScheme + s.bucket + "/"
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("unsupported blob uri %q", uri)
	}
	return strings.TrimPrefix(uri, prefix), nil
}
