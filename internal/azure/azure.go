// Package azure wraps the pieces of the Azure SDK that deployments depend on:
// credential resolution and the storage account / blob container checks that
// run before terraform ever touches the backend.
package azure

import (
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/stratum-ci/stratum/internal/errors"
)

// subscriptionEnvVars are checked in order; terraform's azurerm provider
// reads ARM_SUBSCRIPTION_ID, the Azure SDK reads AZURE_SUBSCRIPTION_ID.
var subscriptionEnvVars = []string{"ARM_SUBSCRIPTION_ID", "AZURE_SUBSCRIPTION_ID"}

// servicePrincipalEnvVars must all be present for non-interactive runs.
var servicePrincipalEnvVars = []string{"ARM_CLIENT_ID", "ARM_CLIENT_SECRET", "ARM_TENANT_ID", "ARM_SUBSCRIPTION_ID"}

// Credentials returns the default credential chain: environment service
// principal, workload identity, managed identity, then Azure CLI.
func Credentials() (*azidentity.DefaultAzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{})
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "could not build Azure credential chain")
	}

	return cred, nil
}

// SubscriptionID resolves the subscription from the environment.
func SubscriptionID() (string, error) {
	for _, name := range subscriptionEnvVars {
		if value := os.Getenv(name); value != "" {
			return value, nil
		}
	}

	return "", errors.Errorf("no Azure subscription configured; set %s", subscriptionEnvVars[0])
}

// MissingCredentialEnvVars returns the service principal variables that are
// not set. An empty result means the environment can authenticate
// non-interactively.
func MissingCredentialEnvVars() []string {
	var missing []string

	for _, name := range servicePrincipalEnvVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}

	return missing
}

// ResponseError unwraps an Azure API failure into its status and error code.
// Returns nil when the error did not come from the Azure API.
func ResponseError(err error) *azcore.ResponseError {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr
	}

	return nil
}

func isAuthFailure(respErr *azcore.ResponseError) bool {
	return respErr.StatusCode == 401 || respErr.StatusCode == 403
}
