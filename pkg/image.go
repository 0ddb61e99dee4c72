package pkg

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	dockerclient "github.com/docker/docker/client"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/commonarch/system/internal/paths"
)

// ImageMetadata is the subset of `skopeo inspect` output this system cares
// about (§4.4).
type ImageMetadata struct {
	Labels map[string]string `json:"Labels"`
}

// Revision returns the org.opencontainers.image.revision label, or "" if
// absent.
func (m ImageMetadata) Revision() string {
	return m.Labels["org.opencontainers.image.revision"]
}

// ImageClient fetches metadata for, and pulls, OCI images via skopeo/umoci,
// invoked strictly as subprocesses (§4.4). localhost/-scheme references are
// resolved against a local Docker/Podman daemon instead of a registry.
type ImageClient struct {
	Runner ProcessRunner
}

// NewImageClient returns an ImageClient backed by runner.
func NewImageClient(runner ProcessRunner) *ImageClient {
	return &ImageClient{Runner: runner}
}

// FetchMetadata fetches imageRef's labels. localhost/-prefixed references
// are inspected directly through the local daemon; anything else goes
// through `skopeo inspect`. A parse or daemon failure is an
// ImageMetadataError.
func (c *ImageClient) FetchMetadata(ctx context.Context, imageRef string) (ImageMetadata, error) {
	if strings.HasPrefix(imageRef, "localhost/") {
		meta, err := localDaemonMetadata(ctx, imageRef)
		if err != nil {
			return ImageMetadata{}, &ImageMetadataError{ImageRef: imageRef, Cause: err}
		}
		return meta, nil
	}

	result, err := c.Runner.Run(ctx, "skopeo", "inspect", imageRef)
	if err != nil {
		return ImageMetadata{}, &ImageMetadataError{ImageRef: imageRef, Cause: err}
	}
	var meta ImageMetadata
	if err := json.Unmarshal([]byte(result.Stdout), &meta); err != nil {
		return ImageMetadata{}, &ImageMetadataError{ImageRef: imageRef, Cause: err}
	}
	return meta, nil
}

// Pull copies imageRef into the local OCI layout, deduplicates its blob
// store against the shared blob directory via a symlink (P5), and unpacks
// it into the bundle directory. localhost/-prefixed references are copied
// out of the local daemon via skopeo's docker-daemon: transport. On success
// the pulled image's digest is cached (best-effort) so IsAlreadyLatest can
// short-circuit future checks without invoking skopeo.
func (c *ImageClient) Pull(ctx context.Context, imageRef string) error {
	source := imageRef
	if strings.HasPrefix(imageRef, "localhost/") {
		source = "docker-daemon:" + imageRef
	}

	steps := [][]string{
		{"skopeo", "copy", source, "--dest-shared-blob-dir=" + paths.Blobs, paths.SystemImageRef},
		{"rm", "-rf", paths.SystemImage + "/blobs"},
		{"ln", "-s", paths.Blobs, paths.SystemImage + "/blobs"},
		{"umoci", "unpack", "--image", paths.SystemImage + ":main", paths.Bundle},
	}
	for _, argv := range steps {
		result, err := c.Runner.Run(ctx, argv...)
		if err != nil || !result.Succeeded() {
			return &ImageMetadataError{ImageRef: imageRef, Cause: err}
		}
	}

	if digest, err := quickDigest(ctx, imageRef); err == nil {
		_ = os.WriteFile(paths.DigestFile, []byte(digest), 0644)
	}
	return nil
}

// IsAlreadyLatest reports whether imageRef's revision label matches the
// currently installed revision recorded in the revision file. A
// go-containerregistry/daemon digest check is tried first as a cheap
// short-circuit against the digest cached by the last Pull: when it
// matches, the (expensive) skopeo inspect call is skipped entirely. If the
// quick check is unavailable or inconclusive, skopeo inspect remains the
// source of truth for the revision label itself.
func (c *ImageClient) IsAlreadyLatest(ctx context.Context, imageRef string) (bool, error) {
	current, err := os.ReadFile(paths.RevisionFile)
	if err != nil {
		return false, nil
	}
	currentRevision := strings.TrimSpace(string(current))
	if currentRevision == "" {
		return false, nil
	}

	if cachedDigest, err := os.ReadFile(paths.DigestFile); err == nil {
		if digest, err := quickDigest(ctx, imageRef); err == nil {
			if digest == strings.TrimSpace(string(cachedDigest)) {
				return true, nil
			}
		}
	}

	meta, err := c.FetchMetadata(ctx, imageRef)
	if err != nil {
		return false, err
	}
	return meta.Revision() == currentRevision, nil
}

// quickDigest performs a cheap remote HEAD-style check against imageRef,
// used by IsAlreadyLatest and the update-check daemon to avoid invoking
// skopeo on every poll when only a digest comparison is needed. localhost/
// references resolve against a local Docker/Podman daemon instead of the
// registry transport.
func quickDigest(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "localhost/") {
		return localDaemonDigest(ctx, ref)
	}
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", err
	}
	desc, err := remote.Head(parsed)
	if err != nil {
		return "", err
	}
	return desc.Digest.String(), nil
}

// localDaemonDigest resolves a localhost/-scheme reference's image ID via
// the local Docker (or Podman, which speaks the same API) daemon socket.
func localDaemonDigest(ctx context.Context, ref string) (string, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return "", err
	}
	defer cli.Close()

	inspect, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return "", err
	}
	return inspect.ID, nil
}

// localDaemonMetadata resolves a localhost/-scheme reference's OCI labels
// via the local Docker (or Podman) daemon socket, used in place of `skopeo
// inspect` since skopeo cannot address the daemon's local image store
// directly under the plain docker:// transport.
func localDaemonMetadata(ctx context.Context, ref string) (ImageMetadata, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return ImageMetadata{}, err
	}
	defer cli.Close()

	inspect, _, err := cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return ImageMetadata{}, err
	}
	labels := map[string]string{}
	if inspect.Config != nil {
		labels = inspect.Config.Labels
	}
	return ImageMetadata{Labels: labels}, nil
}
