package storage

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// blobUploader is the part of *azblob.Client the backend uses.
type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte,
		o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

type azureStore struct {
	client    blobUploader
	container string
}

func newAzureStore(connectionString, container string) (*azureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}
	return &azureStore{client: client, container: container}, nil
}

func (s *azureStore) name() string { return "azure" }

func (s *azureStore) put(ctx context.Context, obj Object) error {
	metricType, collectionID := obj.MetricType, obj.CollectionID
	_, err := s.client.UploadBuffer(ctx, s.container, obj.Key, obj.Data, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"metric_type":   &metricType,
			"collection_id": &collectionID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", s.container, obj.Key, err)
	}
	return nil
}

func (s *azureStore) close() error { return nil }
