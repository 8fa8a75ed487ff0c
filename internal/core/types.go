// Package core provides the canonical record types and the
// normalization pipeline for npm registry documents.
//
// Registry documents accumulated over a decade of publishes and several
// CouchDB migrations, so any field can be missing or carry the wrong
// shape. Everything in this package is written against that reality:
// the normalizers accept any JSON-shaped value and always produce a
// fully defaulted result.
package core

import "time"

// Epoch is the fallback timestamp for documents that carry no usable
// dates: the publication time of the first npm release.
var Epoch = time.Date(2010, time.January, 14, 1, 41, 8, 0, time.FixedZone("", -8*60*60))

// Package is the canonical form of a registry package document.
type Package struct {
	Name        string
	Description string

	// Versions maps each published version to its raw version object.
	Versions map[string]map[string]any

	// Releases lists the valid semantic versions, newest first.
	Releases []string

	// DistTags maps tag names to versions. After normalization of any
	// document with at least one valid release it contains "latest".
	DistTags map[string]string

	// Latest is the version object DistTags["latest"] points at, or an
	// empty object when the document has no usable versions.
	Latest map[string]any

	// Time maps versions (plus the "created" and "modified" markers) to
	// their publication times.
	Time map[string]time.Time

	Created  time.Time
	Modified time.Time

	// Starred lists the accounts that starred the package, sorted.
	Starred []string

	Keywords    []string
	Maintainers []Maintainer

	Dependencies         map[string]string
	DevDependencies      map[string]string
	PeerDependencies     map[string]string
	OptionalDependencies map[string]string
	BundledDependencies  []string

	Engines map[string]string
	Scripts map[string]string

	// Metadata holds the remaining document fields (homepage,
	// repository, license, bugs, ...) that have no dedicated slot.
	Metadata map[string]any
}

// Release is one published version of a package, optionally labelled
// with the dist-tag that addresses it.
type Release struct {
	// Tag is the dist-tag this record was materialized for, empty for
	// plain version entries.
	Tag     string
	Name    string
	Version string
	Date    time.Time

	// Shasum is the SHA-1 checksum of the release tarball.
	Shasum string

	// License is the resolved SPDX descriptor, empty when the version
	// declares none.
	License string

	Dependencies     map[string]string
	DevDependencies  map[string]string
	PeerDependencies map[string]string

	// Metadata is the underlying raw version object. Dist-tag records
	// hold a deep copy so they stay independently mutable.
	Metadata map[string]any
}

// Maintainer identifies an account allowed to publish a package.
type Maintainer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// User is a normalized registry account profile.
type User struct {
	Name     string
	Email    string
	FullName string
	Homepage string

	// GitHub and Twitter are bare handles, never profile URLs.
	GitHub  string
	Twitter string

	// Metadata holds the remaining profile fields.
	Metadata map[string]any
}
