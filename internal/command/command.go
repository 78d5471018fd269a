// Package command runs deployment commands and ties package locks to their
// execution.
//
// A command that consumes a cached package says so by implementing
// PackageConsumer. Registry.Register wraps such commands with WithPackageLock,
// so the package stays locked in the journal for as long as the command runs.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgretain/internal/journal"
)

// ErrUnknownCommand is returned when no command is registered under a name.
var ErrUnknownCommand = errors.New("unknown command")

// Variables is the key/value input a command is invoked with.
type Variables map[string]string

// Get returns the value of name, or "" when unset.
func (v Variables) Get(name string) string {
	return v[name]
}

// Command is a unit of deployment work.
type Command interface {
	Name() string
	Execute(ctx context.Context, vars Variables) error
}

// PackageConsumer is a Command that uses a cached package while it runs.
type PackageConsumer interface {
	Command

	// ConsumedPackage resolves the package and task from the command's
	// variables.
	ConsumedPackage(vars Variables) (journal.PackageIdentity, journal.ServerTaskID, error)
}

// Locker records package locks. *journal.Journal implements it.
type Locker interface {
	RegisterPackageUse(ctx context.Context, pkg journal.PackageIdentity, task journal.ServerTaskID)
	DeregisterPackageUse(ctx context.Context, pkg journal.PackageIdentity, task journal.ServerTaskID)
}

// Registry holds the commands available to run.
type Registry struct {
	commands map[string]Command
	locker   Locker
	log      zerolog.Logger
}

// NewRegistry returns an empty registry. Package consumers registered on it
// lock through locker.
func NewRegistry(locker Locker, logger zerolog.Logger) *Registry {
	return &Registry{
		commands: make(map[string]Command),
		locker:   locker,
		log:      logger,
	}
}

// Register adds cmd under its name. Package consumers are wrapped with
// WithPackageLock.
func (r *Registry) Register(cmd Command) error {
	name := cmd.Name()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if consumer, ok := cmd.(PackageConsumer); ok {
		cmd = WithPackageLock(consumer, r.locker, r.log)
	}
	r.commands[name] = cmd
	return nil
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the command registered under name.
func (r *Registry) Execute(ctx context.Context, name string, vars Variables) error {
	cmd, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return cmd.Execute(ctx, vars)
}
