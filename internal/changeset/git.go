// Package changeset computes which layers and shared modules changed between
// two revisions, and whether a workflow-definition change forces a full
// deployment matrix.
package changeset

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
)

// WrappedError attaches the git operation and its stderr to an underlying
// sentinel error.
type WrappedError struct {
	Op      string
	Context string
	Err     error
}

func (e *WrappedError) Error() string {
	if e.Context == "" {
		return e.Op + ": " + e.Err.Error()
	}

	return e.Op + ": " + e.Err.Error() + ": " + strings.TrimSpace(e.Context)
}

func (e *WrappedError) Unwrap() error {
	return e.Err
}

// Sentinel errors for git operations.
var (
	ErrCommandSpawn = &sentinelError{"failed to run git command"}
	ErrNoWorkDir    = &sentinelError{"no working directory set"}
	ErrGitNotFound  = &sentinelError{"git executable not found"}
)

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

// GitRunner executes git commands against a repository working directory.
type GitRunner struct {
	GitPath string
	WorkDir string
}

// NewGitRunner locates the git executable and returns a runner for the given
// working directory.
func NewGitRunner(workDir string) (*GitRunner, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, &WrappedError{Op: "git", Context: err.Error(), Err: ErrGitNotFound}
	}

	return &GitRunner{GitPath: gitPath, WorkDir: workDir}, nil
}

// Diff returns the paths of files that differ between the two refs.
func (g *GitRunner) Diff(ctx context.Context, baseRef, headRef string) ([]string, error) {
	if g.WorkDir == "" {
		return nil, &WrappedError{Op: "git_diff", Err: ErrNoWorkDir}
	}

	cmd := exec.CommandContext(ctx, g.GitPath, "diff", "--name-only", "--diff-filter=ACDMR", baseRef, headRef)
	cmd.Dir = g.WorkDir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &WrappedError{Op: "git_diff", Context: stderr.String(), Err: ErrCommandSpawn}
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, nil
	}

	return strings.Split(out, "\n"), nil
}

// RefExists reports whether the given revision can be resolved in the
// repository. It reads the object database directly instead of spawning a
// subprocess, so probing many refs stays cheap.
func (g *GitRunner) RefExists(ref string) bool {
	if g.WorkDir == "" {
		return false
	}

	repo, err := git.PlainOpenWithOptions(g.WorkDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false
	}

	_, err = repo.ResolveRevision(plumbing.Revision(ref))

	return err == nil
}
