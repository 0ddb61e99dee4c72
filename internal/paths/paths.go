// Package paths centralises the absolute filesystem locations the rebase
// pipeline owns, per the data model's "Global paths" design note: tests
// redirect individual operations to a sandbox root rather than rewriting
// these constants, since several of them (notably the lock file and
// /usr/etc baseline) are meaningful only at the real system root.
package paths

const (
	// CommonarchDir is the root of this system's persistent state.
	CommonarchDir = "/var/lib/commonarch"

	// Blobs is the shared OCI blob directory (I4).
	Blobs = CommonarchDir + "/blobs"

	// SystemImage is the OCI image storage directory; its "blobs" entry
	// must always be absent or a symlink to Blobs (I4).
	SystemImage = CommonarchDir + "/system-image"

	// SystemImageRef is the oci: reference skopeo/umoci use for SystemImage.
	SystemImageRef = "oci:" + SystemImage + ":main"

	// Bundle is the unpacked OCI bundle directory, containing config.json
	// and the rootfs subdirectory.
	Bundle = CommonarchDir + "/bundle"

	// BundleConfig is the bundle's OCI runtime config file.
	BundleConfig = Bundle + "/config.json"

	// RevisionFile records the currently-installed image's revision.
	// Its absence means "no known revision installed".
	RevisionFile = CommonarchDir + "/revision"

	// DigestFile records the content digest of the last successfully
	// pulled image, used by IsAlreadyLatest's cheap HEAD-based
	// pre-check to avoid a skopeo inspect subprocess when nothing has
	// changed since the last pull.
	DigestFile = CommonarchDir + "/digest"

	// SystemLockFile is the process-wide exclusive lock guarding the
	// rebase pipeline (I1).
	SystemLockFile = CommonarchDir + "/.system-lock"

	// SystemConfigFile is the YAML system configuration document.
	SystemConfigFile = "/system.yaml"

	// UpdateRootfs is the staged replacement rootfs. Its existence is the
	// ground truth that "an update is pending" (I2).
	UpdateRootfs = "/.update_rootfs"

	// NewEtc is the staged replacement for /etc.
	NewEtc = "/.new.etc"

	// NewVarLib is the staged replacement for /var/lib.
	NewVarLib = "/.new.var.lib"

	// UsrEtc is the baseline snapshot of the previously-applied image's
	// /etc, the middle leg of the three-way identity/etc merge.
	UsrEtc = "/usr/etc"

	// UpdateSentinel is a reserved sentinel path, cleaned at the start of
	// every rebase.
	UpdateSentinel = "/.update"

	// Etc is the host's live /etc.
	Etc = "/etc"

	// VarLib is the host's live /var/lib.
	VarLib = "/var/lib"

	// Boot is the host's live /boot.
	Boot = "/boot"
)

// IdentityDatabases lists the colon-separated databases the identity merger
// reconciles, in the fixed order the orchestrator must merge them: passwd
// before shadow before group before gshadow, since group and gshadow both
// consume the passwd merge's output.
var IdentityDatabases = []string{"passwd", "shadow", "group", "gshadow"}
