package publish

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	apperrors "github.com/yourorg/rowstream-kit/pkg/errors"
	"github.com/yourorg/rowstream-kit/pkg/logging"
)

// AzureBlobConfig configures an AzureBlobPublisher.
type AzureBlobConfig struct {
	AccountName string
	// AccountKey enables shared key auth. Leave empty to use managed identity
	// or the default Azure credential chain.
	AccountKey         string
	UseManagedIdentity bool
	Container          string
	// BlockSize and Concurrency bound upload memory to BlockSize*Concurrency.
	BlockSize   int64
	Concurrency int
	Retry       RetryConfig
}

// AzureBlobPublisher streams files into an Azure Blob Storage container.
type AzureBlobPublisher struct {
	client *azblob.Client
	config AzureBlobConfig
	logger logging.Logger
}

// NewAzureBlobPublisher creates a publisher for the configured account.
func NewAzureBlobPublisher(config AzureBlobConfig, logger logging.Logger) (*AzureBlobPublisher, error) {
	if config.AccountName == "" {
		return nil, fmt.Errorf("blob storage account name is required")
	}
	if config.Container == "" {
		return nil, fmt.Errorf("blob container is required")
	}
	if config.BlockSize <= 0 {
		config.BlockSize = 4 * 1024 * 1024
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryConfig()
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", config.AccountName)

	var client *azblob.Client
	if config.UseManagedIdentity || config.AccountKey == "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
	} else {
		cred, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
	}

	return &AzureBlobPublisher{
		client: client,
		config: config,
		logger: logging.OrNop(logger),
	}, nil
}

// Publish uploads localPath as blob name, creating the container if needed.
// The file is streamed in blocks; it is never read into memory whole.
func (a *AzureBlobPublisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	logger := a.logger.With(
		logging.NewField("operation", "blob.publish"),
		logging.NewField("container", a.config.Container),
		logging.NewField("blob", name),
	)

	info, err := os.Stat(localPath)
	if err != nil {
		return "", apperrors.NewPublishError(fmt.Sprintf("cannot stat %s", localPath), err)
	}

	logger.Info("Starting blob upload", logging.NewField("size", info.Size()))

	if _, err := a.client.CreateContainer(ctx, a.config.Container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		logger.Warn("Container create failed", logging.NewField("error", err))
	}

	contentType := ContentTypeFor(name)
	_, err = retryWithResult(ctx, a.config.Retry, func(attempt int) (struct{}, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return struct{}{}, err
		}
		defer f.Close()

		_, err = a.client.UploadStream(ctx, a.config.Container, name, f, &azblob.UploadStreamOptions{
			BlockSize:   a.config.BlockSize,
			Concurrency: a.config.Concurrency,
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
		if err != nil {
			logger.Warn("Blob upload attempt failed", logging.NewField("attempt", attempt+1), logging.NewField("error", err))
		}
		return struct{}{}, err
	})
	if err != nil {
		logger.Error("Failed to upload blob", logging.NewField("error", err))
		return "", apperrors.NewPublishError(fmt.Sprintf("failed to upload %s", name), err)
	}

	url := fmt.Sprintf("%s%s/%s", ensureSlash(a.client.URL()), a.config.Container, name)
	logger.Info("Blob upload successful", logging.NewField("url", url))
	return url, nil
}

func ensureSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
