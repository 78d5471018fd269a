package app

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/command"
	"github.com/blackwell-systems/pkgretain/internal/journal"
)

var (
	runPackageID string
	runVersion   string
	runTaskID    string
	runDir       string

	runCmd = &cobra.Command{
		Use:   "run --package <id> --version <version> [--task <id>] -- <program> [args...]",
		Short: "Run a program with a package locked for its duration",
		Long: `Run a program that consumes a cached package, holding a lock on the package
for exactly as long as the program runs.

The use is recorded and the lock taken before the program starts, and the
lock is released when it exits, whether it succeeds, fails or is interrupted.
The program's exit status becomes pkgretain's exit status.

The package and task are exported to the program as PKGRETAIN_PACKAGE_ID,
PKGRETAIN_PACKAGE_VERSION and PKGRETAIN_SERVER_TASK_ID. When --task is not
given a unique task id is generated.`,
		Example: `  pkgretain run --package Acme.Web --version 1.0.0 --task ServerTasks-1 -- ./deploy.sh --env prod`,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runRun,
	}
)

func init() {
	runCmd.Flags().StringVar(&runPackageID, "package", "", "package id (required)")
	runCmd.Flags().StringVar(&runVersion, "version", "", "package version (required)")
	runCmd.Flags().StringVar(&runTaskID, "task", "", "server task id (default: generated)")
	runCmd.Flags().StringVar(&runDir, "dir", "", "working directory for the program")
	runCmd.MarkFlagRequired("package")
	runCmd.MarkFlagRequired("version")

	// Everything after the program name belongs to the program.
	runCmd.Flags().SetInterspersed(false)

	RootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	task := runTaskID
	if task == "" {
		task = "pkgretain-" + uuid.NewString()
	}
	vars := command.Variables{
		journal.PackageIDVariable:      runPackageID,
		journal.PackageVersionVariable: runVersion,
		journal.ServerTaskIDVariable:   task,
	}
	if _, _, err := journal.FromVariables(vars); err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	registry := command.NewRegistry(e.journal, e.log)
	exec := &command.Exec{
		Path:   args[0],
		Args:   args[1:],
		Dir:    runDir,
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}
	if err := registry.Register(exec); err != nil {
		return fmt.Errorf("failed to register command: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return registry.Execute(ctx, exec.Name(), vars)
}
