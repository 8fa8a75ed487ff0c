package core

import (
	"context"
	"fmt"
)

// LicenseResolver resolves an SPDX descriptor from a raw version
// object. Resolution failures abort release materialization, unlike
// normalization, which never fails.
type LicenseResolver interface {
	Resolve(ctx context.Context, version map[string]any) (string, error)
}

// Releases flattens a canonical package into one record per published
// version plus one record per dist-tag. Tag records are inserted after
// the plain versions, so a tag whose name collides with a version
// string wins the key, and they carry a deep copy of the version data
// so the two records stay independently mutable.
func Releases(ctx context.Context, pkg *Package, resolver LicenseResolver) (map[string]*Release, error) {
	out := make(map[string]*Release, len(pkg.Versions)+len(pkg.DistTags))

	for id, version := range pkg.Versions {
		release, err := materialize(ctx, pkg, id, version, resolver)
		if err != nil {
			return nil, err
		}
		out[id] = release
	}

	for tag, id := range pkg.DistTags {
		version, ok := pkg.Versions[id]
		if !ok {
			// Tags pointing at versions that were unpublished still
			// appear in documents; there is nothing to materialize.
			continue
		}
		copied, _ := deepCopy(version).(map[string]any)
		release, err := materialize(ctx, pkg, id, copied, resolver)
		if err != nil {
			return nil, err
		}
		release.Tag = tag
		out[tag] = release
	}
	return out, nil
}

// materialize builds the record for one version object. id is the key
// the version is published under, which also addresses its entry in the
// package's time map.
func materialize(ctx context.Context, pkg *Package, id string, version map[string]any, resolver LicenseResolver) (*Release, error) {
	release := &Release{
		Name:             pkg.Name,
		Version:          "0.0.0",
		Date:             Epoch,
		Dependencies:     stringMapOf(version["dependencies"]),
		DevDependencies:  stringMapOf(version["devDependencies"]),
		PeerDependencies: stringMapOf(version["peerDependencies"]),
		Metadata:         version,
	}

	if name := stringOf(version["name"]); name != "" {
		release.Name = name
	}
	if v := stringOf(version["version"]); v != "" {
		release.Version = v
	}
	if date, ok := pkg.Time[id]; ok {
		release.Date = date
	}
	if dist, ok := version["dist"].(map[string]any); ok {
		release.Shasum = stringOf(dist["shasum"])
	}

	if resolver != nil {
		license, err := resolver.Resolve(ctx, version)
		if err != nil {
			return nil, fmt.Errorf("resolving license for %s@%s: %w", release.Name, release.Version, err)
		}
		release.License = license
	}
	return release, nil
}

// deepCopy clones JSON-shaped values. Scalars, including time.Time, are
// immutable and returned as-is.
func deepCopy(v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
