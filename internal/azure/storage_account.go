package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"

	"github.com/stratum-ci/stratum/internal/errors"
)

// StorageAccountClient wraps the armstorage management client.
type StorageAccountClient struct {
	client         *armstorage.AccountsClient
	subscriptionID string
}

// NewStorageAccountClient builds a management-plane client for one subscription.
func NewStorageAccountClient(cred azcore.TokenCredential, subscriptionID string) (*StorageAccountClient, error) {
	if subscriptionID == "" {
		return nil, errors.New("subscription ID is required")
	}

	client, err := armstorage.NewAccountsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "could not create storage accounts client")
	}

	return &StorageAccountClient{client: client, subscriptionID: subscriptionID}, nil
}

// AccountExists checks whether the backend storage account exists in the
// given resource group.
func (c *StorageAccountClient) AccountExists(ctx context.Context, resourceGroupName, accountName string) (bool, error) {
	if resourceGroupName == "" || accountName == "" {
		return false, errors.New("resource group and storage account names are required")
	}

	_, err := c.client.GetProperties(ctx, resourceGroupName, accountName, nil)
	if err != nil {
		if respErr := ResponseError(err); respErr != nil {
			if respErr.StatusCode == 404 {
				return false, nil
			}

			if isAuthFailure(respErr) {
				return false, errors.WithStackTraceAndPrefix(err, "authentication failed for subscription %s", c.subscriptionID)
			}
		}

		return false, errors.WithStackTraceAndPrefix(err, "could not check storage account %s", accountName)
	}

	return true, nil
}
