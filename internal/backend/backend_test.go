package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-ci/stratum/internal/backend"
	"github.com/stratum-ci/stratum/internal/config"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cfg := config.BackendConfig{
		StorageAccountName: "stplatformstate",
		ResourceGroupName:  "rg-platform-state",
		ContainerName:      "tfstate-{env}",
		Key:                "{layer}.terraform.tfstate",
	}

	settings := backend.Resolve(cfg, "networking", "qa")

	assert.Equal(t, "stplatformstate", settings.StorageAccountName)
	assert.Equal(t, "tfstate-qa", settings.ContainerName)
	assert.Equal(t, "networking.terraform.tfstate", settings.Key)

	// Two layers in the same environment must never share a state key.
	other := backend.Resolve(cfg, "compute", "qa")
	assert.NotEqual(t, settings.Key, other.Key)
	assert.Equal(t, settings.ContainerName, other.ContainerName)
}

func TestInitArgs(t *testing.T) {
	t.Parallel()

	settings := &backend.Settings{
		StorageAccountName: "stplatformstate",
		ResourceGroupName:  "rg-platform-state",
		ContainerName:      "tfstate-dev",
		Key:                "dns.terraform.tfstate",
	}

	assert.Equal(t, []string{
		"-backend-config=storage_account_name=stplatformstate",
		"-backend-config=resource_group_name=rg-platform-state",
		"-backend-config=container_name=tfstate-dev",
		"-backend-config=key=dns.terraform.tfstate",
	}, settings.InitArgs())
}

func TestSettingsMapRoundTrip(t *testing.T) {
	t.Parallel()

	settings := &backend.Settings{
		StorageAccountName: "stplatformstate",
		ResourceGroupName:  "rg-platform-state",
		ContainerName:      "tfstate-prod",
		Key:                "storage.terraform.tfstate",
	}

	raw, err := settings.ToMap()
	require.NoError(t, err)
	assert.Equal(t, "tfstate-prod", raw["container_name"])

	parsed, err := backend.ParseSettings(raw)
	require.NoError(t, err)
	assert.Equal(t, settings, parsed)
}

func TestVarFile(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "environments/uat/database.tfvars", backend.VarFile("uat", "database"))
}
