// Package backend renders the per-(layer, environment) remote state settings
// that every terraform invocation is pinned to. Layers never declare their own
// backend blocks; the container name and state key come from one shared
// template so two work items can never collide on the same state file.
package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/tf"
)

const (
	placeholderEnv   = "{env}"
	placeholderLayer = "{layer}"
)

// Settings is the fully rendered azurerm backend configuration for one
// (layer, environment) pair.
type Settings struct {
	StorageAccountName string `mapstructure:"storage_account_name"`
	ResourceGroupName  string `mapstructure:"resource_group_name"`
	ContainerName      string `mapstructure:"container_name"`
	Key                string `mapstructure:"key"`
}

// Resolve renders the backend template for one layer in one environment.
func Resolve(cfg config.BackendConfig, layerName, environment string) *Settings {
	return &Settings{
		StorageAccountName: cfg.StorageAccountName,
		ResourceGroupName:  cfg.ResourceGroupName,
		ContainerName:      render(cfg.ContainerName, layerName, environment),
		Key:                render(cfg.Key, layerName, environment),
	}
}

func render(template, layerName, environment string) string {
	rendered := strings.ReplaceAll(template, placeholderEnv, environment)

	return strings.ReplaceAll(rendered, placeholderLayer, layerName)
}

// InitArgs returns the -backend-config arguments for `terraform init`.
func (settings *Settings) InitArgs() []string {
	pairs := [][2]string{
		{"storage_account_name", settings.StorageAccountName},
		{"resource_group_name", settings.ResourceGroupName},
		{"container_name", settings.ContainerName},
		{"key", settings.Key},
	}

	args := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		args = append(args, fmt.Sprintf(tf.FlagNameBackendConfigFmt, pair[0], pair[1]))
	}

	return args
}

// ToMap converts the settings into the map form used by run reports.
func (settings *Settings) ToMap() (map[string]any, error) {
	out := map[string]any{}

	if err := mapstructure.Decode(settings, &out); err != nil {
		return nil, errors.WithStackTrace(err)
	}

	return out, nil
}

// ParseSettings decodes a backend map, for callers that read settings back
// out of a report or an existing state configuration.
func ParseSettings(raw map[string]any) (*Settings, error) {
	settings := new(Settings)

	if err := mapstructure.Decode(raw, settings); err != nil {
		return nil, errors.WithStackTrace(err)
	}

	return settings, nil
}

// VarFile returns the path of the environment-specific variable file for a
// layer, relative to the repository root.
func VarFile(environment, layerName string) string {
	return filepath.Join("environments", environment, layerName+".tfvars")
}
