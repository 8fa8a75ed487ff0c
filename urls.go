package npmjs

import (
	"fmt"
	"strings"

	"github.com/git-pkgs/npmjs/client"
)

const websiteURL = "https://www.npmjs.com"

// URLBuilder constructs public URLs for a package.
type URLBuilder interface {
	Page(name, version string) string
	Tarball(name, version string) string
	Documentation(name, version string) string
	PURL(name, version string) string
}

// URLs builds package URLs against a registry base URL.
type URLs struct {
	registry string
}

var _ URLBuilder = (*URLs)(nil)

// NewURLs returns a builder bound to the given registry. An empty
// registry selects the default.
func NewURLs(registry string) *URLs {
	if registry == "" {
		registry = client.DefaultRegistry
	}
	return &URLs{registry: strings.TrimSuffix(registry, "/")}
}

// Page returns the package page on the npm website.
func (u *URLs) Page(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/package/%s/v/%s", websiteURL, name, version)
	}
	return fmt.Sprintf("%s/package/%s", websiteURL, name)
}

// Tarball returns the registry download URL for a version. Scoped
// packages keep the scope in the path but drop it from the file name.
func (u *URLs) Tarball(name, version string) string {
	if version == "" {
		return ""
	}
	shortName := name
	if i := strings.Index(name, "/"); i >= 0 {
		shortName = name[i+1:]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", u.registry, name, shortName, version)
}

// Documentation returns the docs URL, which npm hosts on the package
// page.
func (u *URLs) Documentation(name, version string) string {
	return u.Page(name, version)
}

// PURL returns the canonical Package URL.
func (u *URLs) PURL(name, version string) string {
	namespace := ""
	pkgName := name
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		namespace = parts[0]
		pkgName = parts[1]
	}

	purl := "pkg:npm/" + pkgName
	if namespace != "" {
		purl = "pkg:npm/" + namespace + "/" + pkgName
	}
	if version != "" {
		purl += "@" + version
	}
	return purl
}

// TarballURL builds the download URL for a release against an arbitrary
// registry base.
func TarballURL(registry, name, version string) string {
	return NewURLs(registry).Tarball(name, version)
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "docs", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Page(name, version); v != "" {
		result["registry"] = v
	}
	if v := urls.Tarball(name, version); v != "" {
		result["download"] = v
	}
	if v := urls.Documentation(name, version); v != "" {
		result["docs"] = v
	}
	if v := urls.PURL(name, version); v != "" {
		result["purl"] = v
	}
	return result
}
