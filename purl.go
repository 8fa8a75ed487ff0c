package npmjs

import (
	"context"
	"fmt"

	packageurl "github.com/package-url/packageurl-go"
)

// PURL wraps packageurl.PackageURL with npm-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the registry name for the package. Scoped packages
// carry their scope in the PURL namespace, so "@babel" and "core"
// rejoin as "@babel/core".
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

// ParsePURL parses a Package URL, with or without a version, e.g.
// pkg:npm/react or pkg:npm/%40babel/core@7.0.0. Non-npm PURLs are
// rejected.
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	if p.Type != "npm" {
		return nil, fmt.Errorf("unsupported PURL type %q: %s", p.Type, purl)
	}
	return &PURL{p}, nil
}

// FromPURL builds a registry client from a PURL and returns it along
// with the full package name and version (empty when the PURL has
// none). A repository_url qualifier, the PURL convention for private
// registries, becomes the client's base URL.
func FromPURL(purl string, opts ...Option) (*Registry, string, string, error) {
	p, err := ParsePURL(purl)
	if err != nil {
		return nil, "", "", err
	}

	if baseURL := p.Qualifiers.Map()["repository_url"]; baseURL != "" {
		opts = append(opts, WithRegistry(baseURL))
	}

	return New(opts...), p.FullName(), p.Version, nil
}

// GetPURL fetches a package's canonical document by PURL.
func GetPURL(ctx context.Context, purl string, opts ...Option) (*Package, error) {
	reg, name, _, err := FromPURL(purl, opts...)
	if err != nil {
		return nil, err
	}
	return reg.Packages.Get(ctx, name)
}

// ReleasePURL fetches the release a versioned PURL points at. PURLs
// without a version are an error.
func ReleasePURL(ctx context.Context, purl string, opts ...Option) (*Release, error) {
	reg, name, version, err := FromPURL(purl, opts...)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, fmt.Errorf("PURL has no version: %s", purl)
	}
	return reg.Packages.Release(ctx, name, version)
}
