// Package gate executes a package's gate script as a short-lived child
// process during retrieval. The script's exit code is the sole decision
// signal: zero allows the download, anything else blocks it.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ErrScriptFailed covers failures to run the script at all (missing
// interpreter, unwritable workspace, timeout). Distinct from a clean
// non-zero exit, which is a policy refusal, not an error.
var ErrScriptFailed = errors.New("gate script execution failed")

// Checker is the contract consumed by the retrieval path.
type Checker interface {
	Check(ctx context.Context, req CheckRequest) (bool, error)
}

// CheckRequest carries the fixed positional argument contract of the
// script: (scriptFile, name, version, actorID, actorID, destPath).
type CheckRequest struct {
	Script  string
	Name    string
	Version string
	Actor   string
}

// Runner executes gate scripts through a configurable interpreter with an
// enforced deadline; the child is joined or killed on every exit path.
type Runner struct {
	Interpreter string
	Timeout     time.Duration
}

// NewRunner builds a Runner; interpreter defaults to node.
func NewRunner(interpreter string) *Runner {
	if interpreter == "" {
		interpreter = "node"
	}
	return &Runner{Interpreter: interpreter, Timeout: 30 * time.Second}
}

// Check materializes the script in a scratch directory and runs it.
// Returns (true, nil) when the script allows the download, (false, nil)
// when it exits non-zero, and an error when it could not be run.
func (r *Runner) Check(ctx context.Context, req CheckRequest) (bool, error) {
	dir, err := os.MkdirTemp("", "gate-check-")
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrScriptFailed, err)
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "gate-script")
	if err := os.WriteFile(scriptPath, []byte(req.Script), 0o700); err != nil {
		return false, fmt.Errorf("%w: %v", ErrScriptFailed, err)
	}
	destPath := filepath.Join(dir, "download")

	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.Interpreter,
		scriptPath, req.Name, req.Version, req.Actor, req.Actor, destPath)
	cmd.Dir = dir

	start := time.Now()
	runErr := cmd.Run()
	log.Printf("[gate] %s@%s actor=%s finished in %s (err=%v)",
		req.Name, req.Version, req.Actor, time.Since(start), runErr)

	if runErr == nil {
		return true, nil
	}
	if cctx.Err() != nil {
		return false, fmt.Errorf("%w: %v", ErrScriptFailed, cctx.Err())
	}
	var ee *exec.ExitError
	if errors.As(runErr, &ee) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrScriptFailed, runErr)
}
