package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/pkg/log"
)

// BlobClient wraps the azblob client for the state container checks.
type BlobClient struct {
	client             *azblob.Client
	storageAccountName string
}

// NewBlobClient builds a data-plane client for one storage account.
func NewBlobClient(cred azcore.TokenCredential, storageAccountName string) (*BlobClient, error) {
	if storageAccountName == "" {
		return nil, errors.New("storage account name is required")
	}

	url := fmt.Sprintf("https://%s.blob.core.windows.net", storageAccountName)

	client, err := azblob.NewClient(url, cred, nil)
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "could not create blob client for %s", storageAccountName)
	}

	return &BlobClient{client: client, storageAccountName: storageAccountName}, nil
}

// ContainerExists checks whether the state container exists.
func (c *BlobClient) ContainerExists(ctx context.Context, containerName string) (bool, error) {
	if containerName == "" {
		return false, errors.New("container name is required")
	}

	container := c.client.ServiceClient().NewContainerClient(containerName)

	_, err := container.GetProperties(ctx, nil)
	if err != nil {
		if respErr := ResponseError(err); respErr != nil {
			if respErr.ErrorCode == "ContainerNotFound" {
				return false, nil
			}

			if isAuthFailure(respErr) {
				return false, errors.WithStackTraceAndPrefix(err, "authentication failed for storage account %s", c.storageAccountName)
			}
		}

		return false, errors.WithStackTraceAndPrefix(err, "could not check container %s", containerName)
	}

	return true, nil
}

// EnsureContainer creates the state container when it does not exist yet.
func (c *BlobClient) EnsureContainer(ctx context.Context, l log.Logger, containerName string) error {
	exists, err := c.ContainerExists(ctx, containerName)
	if err != nil {
		return err
	}

	if exists {
		l.Debugf("Container %s already exists in storage account %s", containerName, c.storageAccountName)
		return nil
	}

	l.Infof("Creating container %s in storage account %s", containerName, c.storageAccountName)

	if _, err := c.client.CreateContainer(ctx, containerName, nil); err != nil {
		// A concurrent run may have created it between the check and here.
		if respErr := ResponseError(err); respErr != nil && respErr.ErrorCode == "ContainerAlreadyExists" {
			return nil
		}

		return errors.WithStackTraceAndPrefix(err, "could not create container %s", containerName)
	}

	return nil
}
