package app

import (
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

var deregisterCmd = &cobra.Command{
	Use:   "deregister <package-id> <version> <task-id>",
	Short: "Release a task's lock on a package",
	Long: `Release the lock a server task holds on a cached package.

The usage history is kept. Deregistering a task that holds no lock, or a
package the journal has never seen, does nothing.`,
	Example: `  pkgretain deregister Acme.Web 1.0.0 ServerTasks-1`,
	Args:    cobra.ExactArgs(3),
	RunE:    runDeregister,
}

func init() {
	RootCmd.AddCommand(deregisterCmd)
}

func runDeregister(cmd *cobra.Command, args []string) error {
	pkg, err := parseIdentity(args[0], args[1])
	if err != nil {
		return err
	}
	task, err := journal.NewServerTaskID(args[2])
	if err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	e.journal.DeregisterPackageUse(commandContext(cmd), pkg, task)
	return nil
}
