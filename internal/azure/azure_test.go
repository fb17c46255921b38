package azure_test

import (
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-ci/stratum/internal/azure"
	"github.com/stratum-ci/stratum/internal/errors"
)

func TestSubscriptionID(t *testing.T) {
	t.Setenv("ARM_SUBSCRIPTION_ID", "")
	t.Setenv("AZURE_SUBSCRIPTION_ID", "")

	_, err := azure.SubscriptionID()
	require.Error(t, err)

	t.Setenv("AZURE_SUBSCRIPTION_ID", "00000000-0000-0000-0000-000000000001")

	subscriptionID, err := azure.SubscriptionID()
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", subscriptionID)

	// ARM_SUBSCRIPTION_ID takes precedence when both are set.
	t.Setenv("ARM_SUBSCRIPTION_ID", "00000000-0000-0000-0000-000000000002")

	subscriptionID, err = azure.SubscriptionID()
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", subscriptionID)
}

func TestMissingCredentialEnvVars(t *testing.T) {
	t.Setenv("ARM_CLIENT_ID", "client")
	t.Setenv("ARM_CLIENT_SECRET", "")
	t.Setenv("ARM_TENANT_ID", "tenant")
	t.Setenv("ARM_SUBSCRIPTION_ID", "")

	assert.Equal(t, []string{"ARM_CLIENT_SECRET", "ARM_SUBSCRIPTION_ID"}, azure.MissingCredentialEnvVars())

	t.Setenv("ARM_CLIENT_SECRET", "secret")
	t.Setenv("ARM_SUBSCRIPTION_ID", "sub")

	assert.Empty(t, azure.MissingCredentialEnvVars())
}

func TestResponseError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, azure.ResponseError(errors.New("not an azure error")))

	respErr := &azcore.ResponseError{
		StatusCode: http.StatusNotFound,
		ErrorCode:  "ContainerNotFound",
	}

	wrapped := errors.WithStackTrace(respErr)

	got := azure.ResponseError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
}
