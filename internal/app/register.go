package app

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/journal"
	"github.com/blackwell-systems/pkgretain/internal/process"
)

var (
	registerOwnerPID int

	registerCmd = &cobra.Command{
		Use:   "register <package-id> <version> <task-id>",
		Short: "Record a use of a package and lock it for a task",
		Long: `Record a use of a cached package and take a lock on it for a server task.

The use is appended to the package's usage history and the task's lock keeps
the package from being evicted until the task deregisters. Registering again
for the same task refreshes the lock and records another use.

The lock owner is recorded as --owner-pid on this host, which defaults to the
parent process (the deployment step's shell). When the owner exits without
deregistering, 'pkgretain expire' can reclaim the lock.

If the calling shell exits before the task finishes (a step that registers
and then hands the work to another process), pass --owner-pid 0. Such a lock
has no owner to check and is only released by deregister or by
retention.maxLockAge.

Journal failures are logged and never fail the command, so a broken journal
cannot block a deployment.`,
		Example: `  # Lock Acme.Web 1.0.0 for task ServerTasks-1
  pkgretain register Acme.Web 1.0.0 ServerTasks-1

  # Record a long-running owner explicitly
  pkgretain register Acme.Web 1.0.0 ServerTasks-1 --owner-pid 4242

  # Lock with no owner; only deregister or maxLockAge release it
  pkgretain register Acme.Web 1.0.0 ServerTasks-1 --owner-pid 0`,
		Args: cobra.ExactArgs(3),
		RunE: runRegister,
	}
)

func init() {
	registerCmd.Flags().IntVar(&registerOwnerPID, "owner-pid", os.Getppid(), "PID of the process owning the lock (0 for unknown)")

	RootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	pkg, err := parseIdentity(args[0], args[1])
	if err != nil {
		return err
	}
	task, err := journal.NewServerTaskID(args[2])
	if err != nil {
		return err
	}

	e, err := loadEnv(cmd, journal.WithOwner(journal.Owner{
		PID:      registerOwnerPID,
		Hostname: process.Hostname(),
	}))
	if err != nil {
		return err
	}

	e.journal.RegisterPackageUse(commandContext(cmd), pkg, task)
	return nil
}
