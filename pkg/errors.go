package pkg

import "fmt"

// ImageMetadataError is returned when an image reference cannot be
// inspected, its labels cannot be parsed, or a pull fails (§7).
type ImageMetadataError struct {
	ImageRef string
	Cause    error
}

func (e *ImageMetadataError) Error() string {
	return fmt.Sprintf("could not fetch metadata for image %s: %v", e.ImageRef, e.Cause)
}

func (e *ImageMetadataError) Unwrap() error { return e.Cause }

// UnsupportedPkgManagerError is returned when a rootfs has neither pacman
// nor apt-get.
type UnsupportedPkgManagerError struct {
	RootfsPath string
}

func (e *UnsupportedPkgManagerError) Error() string {
	return fmt.Sprintf("no supported package manager found in %s", e.RootfsPath)
}

// MalformedIdentityDatabaseError is returned when passwd/shadow/group/gshadow
// cannot be parsed as expected.
type MalformedIdentityDatabaseError struct {
	Database string
	Line     string
	Cause    error
}

func (e *MalformedIdentityDatabaseError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("malformed %s database: %q: %v", e.Database, e.Line, e.Cause)
	}
	return fmt.Sprintf("malformed %s database: %v", e.Database, e.Cause)
}

func (e *MalformedIdentityDatabaseError) Unwrap() error { return e.Cause }

// NoKernelInNewRootfsError is returned when a staged rootfs's /boot has no
// entry whose name starts with "vmlinuz", an I3 violation caught before any
// boot-file mutation.
type NoKernelInNewRootfsError struct {
	RootfsPath string
}

func (e *NoKernelInNewRootfsError) Error() string {
	return fmt.Sprintf("new rootfs contains no kernel (%s); refusing to proceed", e.RootfsPath)
}

// PermissionError is returned when the calling process is not running as
// root.
type PermissionError struct{}

func (e *PermissionError) Error() string {
	return "this command must be run as root"
}

// UpdateAlreadyPendingError is returned when a staged update already exists
// and --force was not given.
type UpdateAlreadyPendingError struct {
	StagedPath string
}

func (e *UpdateAlreadyPendingError) Error() string {
	return fmt.Sprintf("an update is already staged at %s; rerun with --force to discard it", e.StagedPath)
}

// AlreadyLatestError is an informational refusal: the requested image
// matches the currently installed revision. ExplicitImage distinguishes
// the `rebase <image>` phrasing from the plain `update` phrasing.
type AlreadyLatestError struct {
	ImageRef      string
	ExplicitImage bool
}

func (e *AlreadyLatestError) Error() string {
	if e.ExplicitImage {
		return "your system is already on the latest revision of the specified image"
	}
	return "your system is already up-to-date"
}
