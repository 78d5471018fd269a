package command

import (
	"context"

	"github.com/rs/zerolog"
)

type lockingCommand struct {
	inner  PackageConsumer
	locker Locker
	log    zerolog.Logger
}

// WithPackageLock wraps cmd so that its package is locked for the duration of
// every execution. The lock is released on every exit path, including errors
// and panics. If the package cannot be resolved from the variables the command
// still runs, unlocked.
func WithPackageLock(cmd PackageConsumer, locker Locker, logger zerolog.Logger) Command {
	return &lockingCommand{inner: cmd, locker: locker, log: logger}
}

func (c *lockingCommand) Name() string {
	return c.inner.Name()
}

func (c *lockingCommand) Execute(ctx context.Context, vars Variables) error {
	pkg, task, err := c.inner.ConsumedPackage(vars)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("command", c.inner.Name()).
			Msg("cannot resolve consumed package; running without a package lock")
		return c.inner.Execute(ctx, vars)
	}

	c.locker.RegisterPackageUse(ctx, pkg, task)
	// Release even when ctx was cancelled to stop the command.
	defer c.locker.DeregisterPackageUse(context.WithoutCancel(ctx), pkg, task)

	return c.inner.Execute(ctx, vars)
}
