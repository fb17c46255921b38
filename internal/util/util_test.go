package util_test

import (
	goerrors "errors"
	"path/filepath"
	"testing"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCodeFromProcessExecutionError(t *testing.T) {
	t.Parallel()

	procErr := util.ProcessExecutionError{
		Err:        errors.ErrorWithExitCode{Err: goerrors.New("plan has changes"), ExitCode: 2},
		Command:    "terraform",
		Args:       []string{"plan", "-detailed-exitcode"},
		WorkingDir: "/layers/networking",
	}

	code, err := util.GetExitCode(errors.WithStackTrace(procErr))
	require.NoError(t, err)
	assert.Equal(t, 2, code)
}

func TestGetExitCodeUnknown(t *testing.T) {
	t.Parallel()

	base := goerrors.New("no code here")

	code, err := util.GetExitCode(base)
	assert.Zero(t, code)
	assert.Equal(t, base, err)
}

func TestProcessExecutionErrorMessage(t *testing.T) {
	t.Parallel()

	procErr := util.ProcessExecutionError{
		Err:        goerrors.New("exit status 1"),
		Command:    "terraform",
		Args:       []string{"apply"},
		WorkingDir: "/layers/compute",
	}
	procErr.Output.Stderr.WriteString("Error: Error acquiring the state lock")

	msg := procErr.Error()
	assert.Contains(t, msg, "terraform apply")
	assert.Contains(t, msg, "/layers/compute")
	assert.Contains(t, msg, "state lock")
}

func TestListHelpers(t *testing.T) {
	t.Parallel()

	list := []string{"networking", "security", "networking", "dns"}

	assert.True(t, util.ListContainsElement(list, "dns"))
	assert.False(t, util.ListContainsElement(list, "compute"))
	assert.Equal(t, []string{"networking", "security", "dns"}, util.RemoveDuplicatesFromList(list))
}

func TestCanonicalPath(t *testing.T) {
	t.Parallel()

	path, err := util.CanonicalPath("layers/networking", "/repo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/repo/layers/networking"), path)
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.False(t, util.FileExists(filepath.Join(dir, "missing.tfvars")))
	assert.True(t, util.DirExists(dir))
}
