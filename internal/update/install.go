package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrInstallBlocked is returned when the host does not allow installing the
// downloaded package.
var ErrInstallBlocked = errors.New("install blocked: permission not granted")

// Installer hands a downloaded package to the platform installer.
type Installer interface {
	Install(ctx context.Context, path string) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(ctx context.Context, path string) error

func (f InstallerFunc) Install(ctx context.Context, path string) error { return f(ctx, path) }

// CommandInstaller runs Name with Args followed by the package path,
// for example "adb install -r <path>".
type CommandInstaller struct {
	Name string
	Args []string
}

// ParseCommand builds a CommandInstaller from a shell-like command line.
// Quoting is not supported.
func ParseCommand(line string) (CommandInstaller, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandInstaller{}, errors.New("empty install command")
	}
	return CommandInstaller{Name: fields[0], Args: fields[1:]}, nil
}

func (c CommandInstaller) Install(ctx context.Context, path string) error {
	args := append(append([]string{}, c.Args...), path)
	out, err := exec.CommandContext(ctx, c.Name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", c.Name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// LogInstaller only records that a package is ready. Used when no install
// command is configured.
type LogInstaller struct{}

func (LogInstaller) Install(ctx context.Context, path string) error {
	slog.InfoContext(ctx, "Update downloaded, awaiting manual install",
		"component", "update",
		"file", path)
	return nil
}

// Permissions gates installation on host policy.
type Permissions interface {
	// CanInstallUnknownApps reports whether sideloaded packages may be installed.
	CanInstallUnknownApps() bool
	// RequestInstallPermission opens whatever settings surface grants it.
	RequestInstallPermission(ctx context.Context) error
	// HasLegacyStoragePermission is always true on hosts with scoped storage.
	HasLegacyStoragePermission() bool
}

// StaticPermissions answers from fixed values.
type StaticPermissions struct {
	InstallAllowed bool
	StorageAllowed bool
	// OnRequest is called by RequestInstallPermission when set.
	OnRequest func(ctx context.Context) error
}

// AllowAll grants everything.
func AllowAll() StaticPermissions {
	return StaticPermissions{InstallAllowed: true, StorageAllowed: true}
}

func (p StaticPermissions) CanInstallUnknownApps() bool { return p.InstallAllowed }

func (p StaticPermissions) HasLegacyStoragePermission() bool { return p.StorageAllowed }

func (p StaticPermissions) RequestInstallPermission(ctx context.Context) error {
	if p.OnRequest == nil {
		slog.InfoContext(ctx, "Install permission requested", "component", "update")
		return nil
	}
	return p.OnRequest(ctx)
}
