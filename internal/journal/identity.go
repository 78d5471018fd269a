package journal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidIdentity is returned when a package id or version is blank.
	ErrInvalidIdentity = errors.New("invalid package identity")
	// ErrInvalidTaskID is returned when a server task id is blank.
	ErrInvalidTaskID = errors.New("invalid server task id")
)

// Variable names used to resolve a package and task from command inputs.
const (
	PackageIDVariable      = "Package.Id"
	PackageVersionVariable = "Package.Version"
	ServerTaskIDVariable   = "ServerTask.Id"
)

// PackageIdentity identifies a cached package. The version is compared as an
// opaque string.
type PackageIdentity struct {
	PackageID string
	Version   string
}

// NewPackageIdentity trims and validates id and version.
func NewPackageIdentity(packageID, version string) (PackageIdentity, error) {
	p := PackageIdentity{
		PackageID: strings.TrimSpace(packageID),
		Version:   strings.TrimSpace(version),
	}
	if p.PackageID == "" {
		return PackageIdentity{}, fmt.Errorf("%w: package id is required", ErrInvalidIdentity)
	}
	if p.Version == "" {
		return PackageIdentity{}, fmt.Errorf("%w: version is required for %s", ErrInvalidIdentity, p.PackageID)
	}
	return p, nil
}

func (p PackageIdentity) String() string {
	return p.PackageID + "@" + p.Version
}

// Less orders identities by package id, then version.
func (p PackageIdentity) Less(other PackageIdentity) bool {
	if p.PackageID != other.PackageID {
		return p.PackageID < other.PackageID
	}
	return p.Version < other.Version
}

// ServerTaskID names the deployment task holding or using a package.
type ServerTaskID string

// NewServerTaskID trims and validates a task id.
func NewServerTaskID(id string) (ServerTaskID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidTaskID
	}
	return ServerTaskID(id), nil
}

func (t ServerTaskID) String() string {
	return string(t)
}

// Variables is the key/value input a deployment command is invoked with.
type Variables interface {
	Get(name string) string
}

// FromVariables resolves the package and task a command consumes.
func FromVariables(vars Variables) (PackageIdentity, ServerTaskID, error) {
	pkg, err := NewPackageIdentity(vars.Get(PackageIDVariable), vars.Get(PackageVersionVariable))
	if err != nil {
		return PackageIdentity{}, "", err
	}
	task, err := NewServerTaskID(vars.Get(ServerTaskIDVariable))
	if err != nil {
		return PackageIdentity{}, "", fmt.Errorf("%w: %s is not set", err, ServerTaskIDVariable)
	}
	return pkg, task, nil
}
