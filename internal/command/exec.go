package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// ExitError reports a non-zero exit status from an external process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// Environment variables exported to processes started by Exec.
const (
	EnvPackageID      = "PKGRETAIN_PACKAGE_ID"
	EnvPackageVersion = "PKGRETAIN_PACKAGE_VERSION"
	EnvServerTaskID   = "PKGRETAIN_SERVER_TASK_ID"
)

// Exec runs an external program that consumes a cached package, such as a
// deployment script working from an extracted package directory.
type Exec struct {
	Path string
	Args []string
	Dir  string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var _ PackageConsumer = (*Exec)(nil)

func (e *Exec) Name() string {
	return "exec"
}

func (e *Exec) ConsumedPackage(vars Variables) (journal.PackageIdentity, journal.ServerTaskID, error) {
	return journal.FromVariables(vars)
}

// Execute runs the program and waits for it. A non-zero exit status is
// returned as *ExitError.
func (e *Exec) Execute(ctx context.Context, vars Variables) error {
	if e.Path == "" {
		return errors.New("exec: no program given")
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Dir = e.Dir
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.Env = append(os.Environ(),
		EnvPackageID+"="+vars.Get(journal.PackageIDVariable),
		EnvPackageVersion+"="+vars.Get(journal.PackageVersionVariable),
		EnvServerTaskID+"="+vars.Get(journal.ServerTaskIDVariable),
	)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("failed to run %s: %w", e.Path, err)
	}
	return nil
}
