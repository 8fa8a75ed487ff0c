// Package npmjs provides a client for npm registry APIs.
//
// The package talks to CouchDB-backed npm registries (registry.nodejitsu.com,
// registry.npmjs.org, and their mirrors) with a unified interface for
// fetching package documents, releases, maintainers, and user profiles.
// Requests fail over across mirrors and retry with randomized exponential
// backoff.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/npmjs"
//	)
//
//	registry := npmjs.New()
//
//	pkg, err := registry.Packages.Get(context.Background(), "express")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(pkg.Name, pkg.Description)
//
// Authenticated operations take credentials as options:
//
//	registry := npmjs.New(
//		npmjs.WithRegistry("https://registry.npmjs.org/"),
//		npmjs.WithBasicAuth("indexzero", "hunter2"),
//	)
//	err := registry.Users.Add(context.Background(), "charlie", "forever")
package npmjs

import (
	"github.com/git-pkgs/npmjs/client"
	"github.com/git-pkgs/npmjs/internal/core"
	"github.com/git-pkgs/npmjs/internal/endpoints"
)

// Re-export types from internal/core
type (
	// Package represents a normalized registry package document.
	Package = core.Package

	// Release represents a single published version of a package.
	Release = core.Release

	// Maintainer represents a package maintainer.
	Maintainer = core.Maintainer

	// User represents a normalized registry user profile.
	User = core.User

	// LicenseResolver canonicalizes the license field of a version object.
	LicenseResolver = core.LicenseResolver
)

// Re-export types from endpoints
type (
	// Packages exposes the package endpoints of a registry.
	Packages = endpoints.Packages

	// Users exposes the user endpoints of a registry.
	Users = endpoints.Users

	// Details aggregates everything the registry knows about a package.
	Details = endpoints.Details

	// Snapshot aggregates everything the registry knows about a user.
	Snapshot = endpoints.Snapshot
)

// Re-export types from client
type (
	// Client is an HTTP client with mirror failover and retry logic.
	Client = client.Client

	// Cache stores responses for conditional revalidation.
	Cache = client.Cache

	// CachedResponse is a response body stored with its ETag.
	CachedResponse = client.CachedResponse
)

// Re-export errors
var (
	ErrNotFound = client.ErrNotFound
)

// Error types
type (
	HTTPError      = client.HTTPError
	NotFoundError  = client.NotFoundError
	ParseError     = client.ParseError
	ExhaustedError = client.ExhaustedError
)

// Epoch is the fallback timestamp for documents with no usable dates.
var Epoch = core.Epoch

// NormalizePackage converts a raw registry document into a Package.
// It accepts any value and never fails; garbage input yields an empty
// Package with non-nil containers.
var NormalizePackage = core.NormalizePackage

// NormalizeUser converts a raw user document into a User profile.
var NormalizeUser = core.NormalizeUser

// Option configures a Client.
type Option = client.Option

// WithRegistry sets the primary registry base URL.
var WithRegistry = client.WithRegistry

// WithMirrors sets the failover mirror list.
var WithMirrors = client.WithMirrors

// WithTimeout sets the HTTP client timeout.
var WithTimeout = client.WithTimeout

// WithHTTPClient supplies a custom *http.Client.
var WithHTTPClient = client.WithHTTPClient

// WithUserAgent sets the User-Agent header for outgoing requests.
var WithUserAgent = client.WithUserAgent

// WithBasicAuth sets credentials for authenticated operations.
var WithBasicAuth = client.WithBasicAuth

// WithAuthorization sets a raw Authorization header value.
var WithAuthorization = client.WithAuthorization

// WithMaxRetries sets how many backoff rounds follow mirror exhaustion.
var WithMaxRetries = client.WithMaxRetries

// WithBackoff tunes the randomized exponential backoff policy.
var WithBackoff = client.WithBackoff

// WithLogger sets the structured logger for request diagnostics.
var WithLogger = client.WithLogger

// WithCache enables conditional GETs backed by a response cache.
var WithCache = client.WithCache

// Registry bundles the endpoint groups sharing one registry client.
type Registry struct {
	// Packages exposes package lookups, views, and release queries.
	Packages *Packages

	// Users exposes user profiles, views, and maintainer management.
	Users *Users

	client *client.Client
}

// New creates a registry client. With no options it talks to the default
// registry and fails over across the public mirrors.
func New(opts ...Option) *Registry {
	c := client.New(opts...)
	return &Registry{
		Packages: endpoints.NewPackages(c, nil),
		Users:    endpoints.NewUsers(c),
		client:   c,
	}
}

// WithLicenseResolver returns a copy of the registry whose package
// endpoints canonicalize license fields through resolver.
func (r *Registry) WithLicenseResolver(resolver LicenseResolver) *Registry {
	return &Registry{
		Packages: endpoints.NewPackages(r.client, resolver),
		Users:    r.Users,
		client:   r.client,
	}
}

// Client returns the underlying HTTP client.
func (r *Registry) Client() *Client {
	return r.client
}

// URLs returns a URL builder bound to the registry's base URL.
func (r *Registry) URLs() *URLs {
	return NewURLs(r.client.Registry())
}

// DefaultRegistry is the base URL used when no registry is configured.
const DefaultRegistry = client.DefaultRegistry

// Mirrors maps known public mirror names to their base URLs.
var Mirrors = client.Mirrors
