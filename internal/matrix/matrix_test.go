package matrix_test

import (
	"testing"

	"github.com/stratum-ci/stratum/internal/changeset"
	"github.com/stratum-ci/stratum/internal/config"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
backend {
  storage_account_name = "stratumstate"
  resource_group_name  = "stratum-state-rg"
}

environment "dev" {}
environment "qa" {}
environment "prod" {
  protected = true
}

layer "networking" {}

layer "security" {
  depends_on = ["networking"]
}

layer "storage" {
  depends_on = ["networking"]
  modules    = ["naming"]
}

layer "database" {
  depends_on = ["security", "storage"]
}

layer "compute" {
  depends_on = ["security"]
}

layer "monitoring" {
  depends_on = ["security", "compute"]
}

layer "dns" {
  depends_on = ["networking"]
}
`

func testBuilder(t *testing.T, opts ...matrix.BuilderOption) *matrix.Builder {
	t.Helper()

	cfg, err := config.Parse([]byte(testConfig), "stratum.hcl")
	require.NoError(t, err)

	return matrix.NewBuilder(cfg, opts...)
}

func layersOf(items []matrix.WorkItem) []string {
	layers := make([]string, len(items))
	for i, item := range items {
		layers[i] = item.Layer
	}

	return layers
}

func indexOf(list []string, element string) int {
	for i, item := range list {
		if item == element {
			return i
		}
	}

	return -1
}

func TestBuildSingleChangedLayer(t *testing.T) {
	t.Parallel()

	b := testBuilder(t, matrix.WithoutDependencyPropagation())

	items, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Layers: []string{"networking"}},
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationPlan,
	})
	require.NoError(t, err)

	assert.Equal(t, []matrix.WorkItem{
		{Layer: "networking", Environment: "dev", Operation: matrix.OperationPlan},
	}, items)
}

func TestBuildForcedChangeSetEmitsAllLayersInDependencyOrder(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	items, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Forced: true},
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationPlan,
	})
	require.NoError(t, err)
	require.Len(t, items, 7)

	layers := layersOf(items)

	deps := map[string][]string{
		"security":   {"networking"},
		"storage":    {"networking"},
		"database":   {"security", "storage"},
		"compute":    {"security"},
		"monitoring": {"security", "compute"},
		"dns":        {"networking"},
	}

	for layer, upstream := range deps {
		for _, dep := range upstream {
			assert.Less(t, indexOf(layers, dep), indexOf(layers, layer),
				"%s must come before %s", dep, layer)
		}
	}

	for _, item := range items {
		assert.Equal(t, "dev", item.Environment)
		assert.Equal(t, matrix.OperationPlan, item.Operation)
	}
}

func TestBuildDestroyOrderIsExactReverseOfApply(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	applyItems, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Forced: true},
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationApply,
	})
	require.NoError(t, err)

	destroyItems, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Forced: true},
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationDestroy,
	})
	require.NoError(t, err)

	applyLayers := layersOf(applyItems)
	destroyLayers := layersOf(destroyItems)
	require.Len(t, destroyLayers, len(applyLayers))

	for i, layer := range applyLayers {
		assert.Equal(t, layer, destroyLayers[len(destroyLayers)-1-i])
	}
}

func TestBuildDestroyRejectsProtectedEnvironment(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	_, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Forced: true},
		Environment: "prod",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationDestroy,
	})
	require.Error(t, err)

	var protectedErr matrix.ProtectedEnvironmentError
	require.ErrorAs(t, err, &protectedErr)
	assert.Equal(t, "prod", protectedErr.Environment)
}

func TestBuildDestroyAllEnvironmentsRejectedWhenAnyProtected(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	_, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Forced: true},
		Environment: matrix.SelectorAll,
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationDestroy,
	})

	var protectedErr matrix.ProtectedEnvironmentError
	require.ErrorAs(t, err, &protectedErr)
}

func TestBuildSpecificLayerBypassesChangeDetection(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	items, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{},
		Environment: matrix.SelectorAll,
		Layer:       "compute",
		Operation:   matrix.OperationApply,
	})
	require.NoError(t, err)

	assert.Equal(t, []matrix.WorkItem{
		{Layer: "compute", Environment: "dev", Operation: matrix.OperationApply},
		{Layer: "compute", Environment: "qa", Operation: matrix.OperationApply},
		{Layer: "compute", Environment: "prod", Operation: matrix.OperationApply},
	}, items)
}

func TestBuildModuleChangePullsInConsumingLayers(t *testing.T) {
	t.Parallel()

	b := testBuilder(t, matrix.WithoutDependencyPropagation())

	items, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Modules: []string{"naming"}},
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationPlan,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"storage"}, layersOf(items))
}

func TestBuildDependencyPropagation(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	items, err := b.Build(matrix.Request{
		Changes:     &changeset.ChangeSet{Layers: []string{"security"}},
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationPlan,
	})
	require.NoError(t, err)

	// security changed, so every layer downstream of it is re-planned too.
	assert.Equal(t, []string{"security", "database", "compute", "monitoring"}, layersOf(items))
}

func TestBuildNilChangesCoversAllLayers(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	items, err := b.Build(matrix.Request{
		Environment: "qa",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationPlan,
	})
	require.NoError(t, err)
	assert.Len(t, items, 7)
}

func TestBuildRejectsUnknownSelectors(t *testing.T) {
	t.Parallel()

	b := testBuilder(t)

	_, err := b.Build(matrix.Request{
		Environment: "staging",
		Layer:       matrix.SelectorAll,
		Operation:   matrix.OperationPlan,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown environment")

	_, err = b.Build(matrix.Request{
		Environment: "dev",
		Layer:       "identity",
		Operation:   matrix.OperationPlan,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown layer")

	_, err = b.Build(matrix.Request{
		Environment: "dev",
		Layer:       matrix.SelectorAll,
		Operation:   "refresh",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation")
}

func TestParseOperation(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"plan", "apply", "destroy"} {
		op, err := matrix.ParseOperation(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(op))
	}

	_, err := matrix.ParseOperation("refresh")
	require.Error(t, err)
}
