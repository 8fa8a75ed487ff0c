package core

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseVersion parses an npm version identifier. Legacy documents carry
// "v" and "=" prefixes, which are tolerated; anything short of a full
// semantic version is rejected.
func ParseVersion(id string) (*semver.Version, bool) {
	trimmed := strings.TrimSpace(id)
	trimmed = strings.TrimPrefix(trimmed, "=")
	trimmed = strings.TrimPrefix(trimmed, "v")

	v, err := semver.StrictNewVersion(trimmed)
	if err != nil {
		return nil, false
	}
	return v, true
}

// SortReleases filters ids down to valid semantic versions and sorts
// them newest first, preserving the original identifier strings.
func SortReleases(ids []string) []string {
	type release struct {
		id      string
		version *semver.Version
	}

	releases := make([]release, 0, len(ids))
	for _, id := range ids {
		if v, ok := ParseVersion(id); ok {
			releases = append(releases, release{id: id, version: v})
		}
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].version.GreaterThan(releases[j].version)
	})

	out := make([]string, len(releases))
	for i, r := range releases {
		out[i] = r.id
	}
	return out
}
