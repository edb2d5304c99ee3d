package blobs

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBackend stores artifacts in an Azure Blob Storage container.
type AzureBackend struct {
	containerURL  azblob.ContainerURL
	publicBaseURL string
}

// NewAzureBackend creates an Azure backend using shared key credentials.
func NewAzureBackend(cfg AzureConfig, publicBaseURL string) (*AzureBackend, error) {
	if cfg.StorageAccount == "" || cfg.Container == "" {
		return nil, fmt.Errorf("%w: Azure storage account and container are required", ErrConfiguration)
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("%w: Azure storage account key not provided", ErrConfiguration)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.StorageAccount, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Azure credentials: %v", ErrConfiguration, err)
	}

	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", cfg.StorageAccount, cfg.Container))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse container URL: %v", ErrConfiguration, err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	return &AzureBackend{
		containerURL:  azblob.NewContainerURL(*u, pipeline),
		publicBaseURL: publicBaseURL,
	}, nil
}

// Put uploads the object as a block blob.
func (b *AzureBackend) Put(ctx context.Context, storagePath string, data []byte, contentType, cacheControl string) error {
	blobURL := b.containerURL.NewBlockBlobURL(storagePath)
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 4,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType:  contentType,
			CacheControl: cacheControl,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to azure: %w", storagePath, err)
	}
	return nil
}

// PublicURL prefers the configured base URL, then the blob's own URL.
func (b *AzureBackend) PublicURL(storagePath string) (string, error) {
	if b.publicBaseURL != "" {
		return joinPublicURL(b.publicBaseURL, storagePath), nil
	}
	blobURL := b.containerURL.NewBlockBlobURL(storagePath)
	u := blobURL.URL()
	return u.String(), nil
}
