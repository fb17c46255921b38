// Package config loads the declarative deployment configuration (stratum.hcl):
// the environment list, the layer dependency graph, the state backend
// settings, and the change-detection roots. The file is parsed once at
// process start and the result is treated as immutable.
package config

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/layer"
)

// DefaultConfigName is the configuration file looked up in the working
// directory when no explicit path is given.
const DefaultConfigName = "stratum.hcl"

const (
	defaultTerraformPath = "terraform"
	defaultContainerName = "tfstate-{env}"
	defaultStateKey      = "{layer}.terraform.tfstate"
	defaultLayersRoot    = "layers"
	defaultModulesRoot   = "modules"
	defaultWorkflowsRoot = ".github/workflows"
)

// Config is the fully validated deployment configuration.
type Config struct {
	Terraform    TerraformConfig
	Backend      BackendConfig
	Changes      ChangesConfig
	Environments []*Environment
	Graph        *layer.Graph
}

// Environment is a named deployment target. Protected environments refuse
// destroy operations outright.
type Environment struct {
	Name      string
	Protected bool
}

// TerraformConfig selects the wrapped tool binary and the accepted version range.
type TerraformConfig struct {
	Path            string
	RequiredVersion string
}

// BackendConfig locates the Azure storage backend that holds per-(layer,
// environment) state. ContainerName and Key may contain the placeholders
// {env} and {layer}.
type BackendConfig struct {
	StorageAccountName string
	ResourceGroupName  string
	ContainerName      string
	Key                string
}

// ChangesConfig names the roots used to attribute changed paths, plus the
// workflow-definition root whose changes force a full matrix.
type ChangesConfig struct {
	LayersRoot    string
	ModulesRoot   string
	WorkflowsRoot string
}

// hcl decoding targets; converted into the exported types after validation.

type configFile struct {
	Terraform    *terraformBlock     `hcl:"terraform,block"`
	Backend      *backendBlock       `hcl:"backend,block"`
	Changes      *changesBlock       `hcl:"changes,block"`
	Environments []*environmentBlock `hcl:"environment,block"`
	Layers       []*layerBlock       `hcl:"layer,block"`
}

type terraformBlock struct {
	Path            *string `hcl:"path"`
	RequiredVersion *string `hcl:"required_version"`
}

type backendBlock struct {
	StorageAccountName string  `hcl:"storage_account_name"`
	ResourceGroupName  string  `hcl:"resource_group_name"`
	ContainerName      *string `hcl:"container_name"`
	Key                *string `hcl:"key"`
}

type changesBlock struct {
	LayersRoot    *string `hcl:"layers_root"`
	ModulesRoot   *string `hcl:"modules_root"`
	WorkflowsRoot *string `hcl:"workflows_root"`
}

type environmentBlock struct {
	Name      string `hcl:"name,label"`
	Protected *bool  `hcl:"protected"`
}

type layerBlock struct {
	Name         string    `hcl:"name,label"`
	Path         *string   `hcl:"path"`
	Dependencies *[]string `hcl:"depends_on"`
	Modules      *[]string `hcl:"modules"`
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "reading deployment configuration %s", path)
	}

	return Parse(src, path)
}

// Parse decodes and validates configuration from raw HCL source. Environment
// variables are exposed to the file as the `env` object, so values like
// storage account names can be injected by CI.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.New(diags)
	}

	var raw configFile

	if diags := gohcl.DecodeBody(file.Body, evalContext(), &raw); diags.HasErrors() {
		return nil, errors.New(diags)
	}

	return newConfig(&raw)
}

// evalContext exposes process environment variables as `env.<NAME>`.
func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}

	for _, entry := range os.Environ() {
		if name, value, ok := strings.Cut(entry, "="); ok && name != "" {
			vars[name] = cty.StringVal(value)
		}
	}

	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}

func newConfig(raw *configFile) (*Config, error) {
	if len(raw.Environments) == 0 {
		return nil, errors.Errorf("at least one environment block is required")
	}

	if len(raw.Layers) == 0 {
		return nil, errors.Errorf("at least one layer block is required")
	}

	if raw.Backend == nil {
		return nil, errors.Errorf("a backend block is required")
	}

	cfg := &Config{
		Terraform: TerraformConfig{Path: defaultTerraformPath},
		Backend: BackendConfig{
			StorageAccountName: raw.Backend.StorageAccountName,
			ResourceGroupName:  raw.Backend.ResourceGroupName,
			ContainerName:      defaultContainerName,
			Key:                defaultStateKey,
		},
		Changes: ChangesConfig{
			LayersRoot:    defaultLayersRoot,
			ModulesRoot:   defaultModulesRoot,
			WorkflowsRoot: defaultWorkflowsRoot,
		},
	}

	if raw.Terraform != nil {
		if raw.Terraform.Path != nil {
			cfg.Terraform.Path = *raw.Terraform.Path
		}

		if raw.Terraform.RequiredVersion != nil {
			cfg.Terraform.RequiredVersion = *raw.Terraform.RequiredVersion
		}
	}

	if cfg.Backend.StorageAccountName == "" {
		return nil, errors.Errorf("backend storage_account_name must not be empty")
	}

	if cfg.Backend.ResourceGroupName == "" {
		return nil, errors.Errorf("backend resource_group_name must not be empty")
	}

	if raw.Backend.ContainerName != nil {
		cfg.Backend.ContainerName = *raw.Backend.ContainerName
	}

	if raw.Backend.Key != nil {
		cfg.Backend.Key = *raw.Backend.Key
	}

	if raw.Changes != nil {
		if raw.Changes.LayersRoot != nil {
			cfg.Changes.LayersRoot = *raw.Changes.LayersRoot
		}

		if raw.Changes.ModulesRoot != nil {
			cfg.Changes.ModulesRoot = *raw.Changes.ModulesRoot
		}

		if raw.Changes.WorkflowsRoot != nil {
			cfg.Changes.WorkflowsRoot = *raw.Changes.WorkflowsRoot
		}
	}

	seenEnvs := map[string]bool{}

	for _, env := range raw.Environments {
		if seenEnvs[env.Name] {
			return nil, errors.Errorf("environment %q declared more than once", env.Name)
		}

		seenEnvs[env.Name] = true

		cfg.Environments = append(cfg.Environments, &Environment{
			Name:      env.Name,
			Protected: env.Protected != nil && *env.Protected,
		})
	}

	layers := make([]*layer.Layer, 0, len(raw.Layers))

	for _, lb := range raw.Layers {
		l := &layer.Layer{Name: lb.Name}

		l.Path = cfg.Changes.LayersRoot + "/" + lb.Name
		if lb.Path != nil {
			l.Path = *lb.Path
		}

		if lb.Dependencies != nil {
			l.Dependencies = *lb.Dependencies
		}

		if lb.Modules != nil {
			l.Modules = *lb.Modules
		}

		layers = append(layers, l)
	}

	graph, err := layer.NewGraph(layers)
	if err != nil {
		return nil, err
	}

	cfg.Graph = graph

	return cfg, nil
}

// Environment returns the environment with the given name.
func (cfg *Config) Environment(name string) (*Environment, error) {
	for _, env := range cfg.Environments {
		if env.Name == name {
			return env, nil
		}
	}

	return nil, errors.Errorf("unknown environment %q, declared environments: %s",
		name, strings.Join(cfg.EnvironmentNames(), ", "))
}

// EnvironmentNames returns all declared environment names in order.
func (cfg *Config) EnvironmentNames() []string {
	names := make([]string, len(cfg.Environments))
	for i, env := range cfg.Environments {
		names[i] = env.Name
	}

	return names
}
