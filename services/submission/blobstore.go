package submission

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"

	"advocacy-engine/pkg/config"
)

type minioStore struct {
	client *minio.Client
	bucket string
}

func (m *minioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return key, nil
}

type BlobStoreParams struct {
	fx.In

	Client *minio.Client `optional:"true"`
	Config *config.Config
}

// NewBlobStore wraps the shared minio client. Without a configured client
// intake runs with archiving disabled and source references fall back to
// inline fingerprints.
func NewBlobStore(p BlobStoreParams) BlobStore {
	if p.Client == nil {
		return nil
	}
	return &minioStore{client: p.Client, bucket: p.Config.Minio.BucketName}
}
