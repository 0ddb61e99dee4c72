package pkg

import "context"

// PackageManager performs package installation inside a staged rootfs,
// detecting the package manager present rather than assuming one (§4.3).
type PackageManager struct {
	rootfs *RootFS
	kind   string
}

const (
	pkgManagerPacman = "pacman"
	pkgManagerApt    = "apt"
	pkgManagerNone   = "none"
)

// NewPackageManager detects the package manager present in rootfs and
// returns a PackageManager bound to it, or an UnsupportedPkgManagerError
// if neither pacman nor apt-get is present.
func NewPackageManager(rootfs *RootFS) (*PackageManager, error) {
	kind := detectPkgManager(rootfs)
	if kind == pkgManagerNone {
		return nil, &UnsupportedPkgManagerError{RootfsPath: rootfs.Path}
	}
	return &PackageManager{rootfs: rootfs, kind: kind}, nil
}

func detectPkgManager(rootfs *RootFS) string {
	if rootfs.Exists("usr/bin/pacman") {
		return pkgManagerPacman
	}
	if rootfs.Exists("usr/bin/apt-get") {
		return pkgManagerApt
	}
	return pkgManagerNone
}

// Init prepares the package manager for use (keyring init for pacman,
// index refresh for apt).
func (p *PackageManager) Init(ctx context.Context) error {
	switch p.kind {
	case pkgManagerPacman:
		if _, err := p.rootfs.Exec(ctx, "pacman-key", "--init"); err != nil {
			return err
		}
		_, err := p.rootfs.Exec(ctx, "pacman-key", "--populate")
		return err
	case pkgManagerApt:
		_, err := p.rootfs.Exec(ctx, "apt-get", "update")
		return err
	}
	return nil
}

// Install installs pkgs inside the rootfs. Each package name is passed as
// its own argv token to the package manager, never concatenated into a
// shell string.
func (p *PackageManager) Install(ctx context.Context, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	switch p.kind {
	case pkgManagerPacman:
		argv := append([]string{"pacman", "-Sy", "--ask=4"}, pkgs...)
		_, err := p.rootfs.Exec(ctx, argv...)
		return err
	case pkgManagerApt:
		argv := append([]string{"env", "DEBIAN_FRONTEND=noninteractive", "apt-get", "install", "-yq"}, pkgs...)
		_, err := p.rootfs.Exec(ctx, argv...)
		return err
	}
	return nil
}
