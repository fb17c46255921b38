// Package preflight runs the checks behind the validate command: everything
// that can fail a deployment late is checked up front instead, before any
// terraform process starts.
package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/stratum-ci/stratum/internal/azure"
	"github.com/stratum-ci/stratum/internal/backend"
	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/tf"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stratum-ci/stratum/pkg/log"
)

// Options configures which checks run and against what.
type Options struct {
	Config     *config.Config
	WorkingDir string
	TFPath     string

	// Environments restricts the var-file checks; empty means all configured
	// environments.
	Environments []string

	// SkipCredentials disables the Azure credential env var check, for
	// matrix-only invocations that never reach a cloud API.
	SkipCredentials bool
}

// Check runs every preflight check and collects all findings instead of
// stopping at the first, so one validate run shows everything that is wrong.
func Check(ctx context.Context, l log.Logger, opts *Options) error {
	errs := new(errors.MultiError)

	errs = errs.Append(checkToolVersion(ctx, l, opts))
	errs = errs.Append(checkLayerDirs(opts)...)
	errs = errs.Append(checkVarFiles(opts)...)

	if !opts.SkipCredentials {
		if missing := azure.MissingCredentialEnvVars(); len(missing) > 0 {
			errs = errs.Append(errors.Errorf("missing Azure credential environment variables: %s", strings.Join(missing, ", ")))
		}
	}

	return errs.ErrorOrNil()
}

func checkToolVersion(ctx context.Context, l log.Logger, opts *Options) error {
	runOpts := &tf.RunOptions{
		TFPath:     opts.TFPath,
		WorkingDir: opts.WorkingDir,
	}

	v, err := tf.Version(ctx, l, runOpts)
	if err != nil {
		return errors.WithStackTraceAndPrefix(err, "could not determine terraform version with %q", opts.TFPath)
	}

	l.Debugf("Found terraform version %s", v)

	return tf.CheckVersionConstraint(v, opts.Config.Terraform.RequiredVersion)
}

func checkLayerDirs(opts *Options) []error {
	var errs []error

	for _, layerName := range opts.Config.Graph.Names() {
		lyr, err := opts.Config.Graph.Layer(layerName)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		dir := filepath.Join(opts.WorkingDir, lyr.Path)
		if !util.DirExists(dir) {
			errs = append(errs, errors.Errorf("layer %q has no directory at %s", layerName, dir))
		}
	}

	return errs
}

func checkVarFiles(opts *Options) []error {
	environments := opts.Environments
	if len(environments) == 0 {
		environments = opts.Config.EnvironmentNames()
	}

	var errs []error

	for _, environment := range environments {
		for _, layerName := range opts.Config.Graph.Names() {
			varFile := filepath.Join(opts.WorkingDir, backend.VarFile(environment, layerName))
			if !util.FileExists(varFile) {
				errs = append(errs, errors.Errorf("environment %q is missing var file %s for layer %q", environment, varFile, layerName))
			}
		}
	}

	return errs
}

// CheckBackend verifies the remote state storage account and, when asked,
// creates the missing state containers. It needs live Azure credentials and
// is kept apart from Check so validate can run offline.
func CheckBackend(ctx context.Context, l log.Logger, opts *Options, createContainers bool) error {
	cred, err := azure.Credentials()
	if err != nil {
		return err
	}

	subscriptionID, err := azure.SubscriptionID()
	if err != nil {
		return err
	}

	accounts, err := azure.NewStorageAccountClient(cred, subscriptionID)
	if err != nil {
		return err
	}

	backendCfg := opts.Config.Backend

	exists, err := accounts.AccountExists(ctx, backendCfg.ResourceGroupName, backendCfg.StorageAccountName)
	if err != nil {
		return err
	}

	if !exists {
		return errors.Errorf("backend storage account %q does not exist in resource group %q", backendCfg.StorageAccountName, backendCfg.ResourceGroupName)
	}

	blobs, err := azure.NewBlobClient(cred, backendCfg.StorageAccountName)
	if err != nil {
		return err
	}

	environments := opts.Environments
	if len(environments) == 0 {
		environments = opts.Config.EnvironmentNames()
	}

	errs := new(errors.MultiError)

	for _, environment := range environments {
		// Container templates only vary by environment in practice, but the
		// key may carry the layer, so resolve per layer and dedupe.
		var seen []string

		for _, layerName := range opts.Config.Graph.Names() {
			settings := backend.Resolve(backendCfg, layerName, environment)
			if util.ListContainsElement(seen, settings.ContainerName) {
				continue
			}

			seen = append(seen, settings.ContainerName)

			if createContainers {
				errs = errs.Append(blobs.EnsureContainer(ctx, l, settings.ContainerName))
				continue
			}

			containerExists, err := blobs.ContainerExists(ctx, settings.ContainerName)
			if err != nil {
				errs = errs.Append(err)
				continue
			}

			if !containerExists {
				errs = errs.Append(errors.Errorf("state container %q does not exist in storage account %q", settings.ContainerName, backendCfg.StorageAccountName))
			}
		}
	}

	return errs.ErrorOrNil()
}
