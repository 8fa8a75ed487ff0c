// Package endpoints implements the public package and account
// operations on top of the request executor and the normalization
// pipeline.
package endpoints

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/npmjs/client"
	"github.com/git-pkgs/npmjs/internal/core"
	"github.com/git-pkgs/npmjs/licenses"
)

const defaultConcurrency = 15

// Packages exposes the package document operations.
type Packages struct {
	client   *client.Client
	licenses core.LicenseResolver
}

// NewPackages binds the package operations to a client. A nil resolver
// selects the default lenient SPDX resolver.
func NewPackages(c *client.Client, resolver core.LicenseResolver) *Packages {
	if resolver == nil {
		resolver = licenses.Default
	}
	return &Packages{client: c, licenses: resolver}
}

// Get fetches and normalizes a package document.
func (p *Packages) Get(ctx context.Context, name string) (*core.Package, error) {
	var raw any
	if err := p.client.Get(ctx, "/"+url.PathEscape(name), &raw); err != nil {
		return nil, err
	}
	return core.NormalizePackage(raw), nil
}

// Depended lists the packages that depend on name.
func (p *Packages) Depended(ctx context.Context, name string) ([]string, error) {
	return p.view(ctx, viewDependedUpon, name)
}

// Starred lists the accounts that starred the package.
func (p *Packages) Starred(ctx context.Context, name string) ([]string, error) {
	return p.view(ctx, viewBrowseStarPackage, name)
}

// Keyword lists the packages tagged with word.
func (p *Packages) Keyword(ctx context.Context, word string) ([]string, error) {
	return p.view(ctx, viewByKeyword, word)
}

func (p *Packages) view(ctx context.Context, view, key string) ([]string, error) {
	var res viewResponse
	if err := p.client.View(ctx, view, key, &res); err != nil {
		return nil, err
	}
	return names(res.Rows), nil
}

// Releases fetches a package and materializes its version and dist-tag
// records.
func (p *Packages) Releases(ctx context.Context, name string) (map[string]*core.Release, error) {
	pkg, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return core.Releases(ctx, pkg, p.licenses)
}

// Release resolves a single release by exact version, dist-tag, or
// semver range. Ranges resolve to the newest satisfying release.
func (p *Packages) Release(ctx context.Context, name, version string) (*core.Release, error) {
	pkg, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	releases, err := core.Releases(ctx, pkg, p.licenses)
	if err != nil {
		return nil, err
	}

	if release, ok := releases[version]; ok {
		return release, nil
	}

	constraint, err := semver.NewConstraint(version)
	if err != nil {
		return nil, fmt.Errorf("invalid version or range %q for %s: %w", version, name, err)
	}
	for _, id := range pkg.Releases {
		v, ok := core.ParseVersion(id)
		if !ok || !constraint.Check(v) {
			continue
		}
		if release, ok := releases[id]; ok {
			return release, nil
		}
	}
	return nil, &client.NotFoundError{Name: name, Version: version}
}

// Details is the assembled view of a package: the canonical document,
// its materialized releases, and what the rest of the registry thinks
// of it.
type Details struct {
	Package  *core.Package
	Releases map[string]*core.Release
	Depended []string
	Starred  []string
}

// Details gathers the document and its surrounding views concurrently.
func (p *Packages) Details(ctx context.Context, name string) (*Details, error) {
	details := &Details{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pkg, err := p.Get(ctx, name)
		if err != nil {
			return err
		}
		releases, err := core.Releases(ctx, pkg, p.licenses)
		if err != nil {
			return err
		}
		details.Package = pkg
		details.Releases = releases
		return nil
	})
	g.Go(func() error {
		depended, err := p.Depended(ctx, name)
		details.Depended = depended
		return err
	})
	g.Go(func() error {
		starred, err := p.Starred(ctx, name)
		details.Starred = starred
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

// Bulk fetches several packages in parallel. Individual failures are
// silently skipped, so the result holds only the names that resolved.
func (p *Packages) Bulk(ctx context.Context, names []string) map[string]*core.Package {
	return p.BulkWithConcurrency(ctx, names, defaultConcurrency)
}

// BulkWithConcurrency fetches packages with a custom concurrency limit.
func (p *Packages) BulkWithConcurrency(ctx context.Context, names []string, concurrency int) map[string]*core.Package {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make(map[string]*core.Package)
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			pkg, err := p.Get(ctx, name)
			if err == nil && pkg != nil {
				mu.Lock()
				results[name] = pkg
				mu.Unlock()
			}
		}(name)
	}

	wg.Wait()
	return results
}
