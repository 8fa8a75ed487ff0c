package fetch

import (
	"errors"
	"strings"

	"github.com/git-pkgs/npmjs"
)

// ErrNoDownloadURL means a release carries no tarball URL and none
// could be derived from the registry's path conventions.
var ErrNoDownloadURL = errors.New("no download URL available")

// Resolver turns releases into downloadable tarball locations against
// one registry base URL.
type Resolver struct {
	registry string
}

// NewResolver returns a resolver for the given registry. Empty selects
// the default registry.
func NewResolver(registry string) *Resolver {
	return &Resolver{registry: registry}
}

// ArtifactInfo locates one downloadable tarball.
type ArtifactInfo struct {
	URL      string
	Filename string
	Shasum   string // SHA-1 hex digest from the registry's dist object
}

// Resolve returns the tarball URL, filename, and expected shasum for a
// release. A dist.tarball URL published in the package document wins;
// releases without one fall back to the registry's conventional
// <registry>/<name>/-/<name>-<version>.tgz path.
func (r *Resolver) Resolve(release *npmjs.Release) (*ArtifactInfo, error) {
	if release == nil {
		return nil, ErrNoDownloadURL
	}

	url := distTarball(release)
	if url == "" {
		url = npmjs.TarballURL(r.registry, release.Name, release.Version)
	}
	if url == "" {
		return nil, ErrNoDownloadURL
	}

	return &ArtifactInfo{
		URL:      url,
		Filename: filenameFromURL(url),
		Shasum:   release.Shasum,
	}, nil
}

func distTarball(release *npmjs.Release) string {
	dist, ok := release.Metadata["dist"].(map[string]any)
	if !ok {
		return ""
	}
	url, _ := dist["tarball"].(string)
	return url
}

func filenameFromURL(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
