package endpoints

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/npmjs/client"
	"github.com/git-pkgs/npmjs/internal/core"
)

// Users exposes the account operations.
type Users struct {
	client *client.Client
}

// NewUsers binds the account operations to a client.
func NewUsers(c *client.Client) *Users {
	return &Users{client: c}
}

// Get fetches and normalizes an account profile.
func (u *Users) Get(ctx context.Context, name string) (*core.User, error) {
	var raw any
	if err := u.client.Get(ctx, "/-/user/org.couchdb.user:"+url.PathEscape(name), &raw); err != nil {
		return nil, err
	}
	return core.NormalizeUser(raw), nil
}

// List lists the packages the account has published.
func (u *Users) List(ctx context.Context, name string) ([]string, error) {
	return u.view(ctx, viewBrowseAuthors, name)
}

// Starred lists the packages the account has starred.
func (u *Users) Starred(ctx context.Context, name string) ([]string, error) {
	return u.view(ctx, viewBrowseStarUser, name)
}

func (u *Users) view(ctx context.Context, view, key string) ([]string, error) {
	var res viewResponse
	if err := u.client.View(ctx, view, key, &res); err != nil {
		return nil, err
	}
	return names(res.Rows), nil
}

// maintainerDoc is the slice of a package document the Add flow reads
// and writes back.
type maintainerDoc struct {
	ID          string            `json:"_id"`
	Rev         string            `json:"_rev"`
	Maintainers []core.Maintainer `json:"maintainers"`
}

// Add grants the account maintainer rights on pkg: read the current
// document, append the account, and write the update against the
// document revision. Adding an existing maintainer is a no-op.
func (u *Users) Add(ctx context.Context, name, pkg string) error {
	path := "/" + url.PathEscape(pkg)

	var doc maintainerDoc
	if err := u.client.Get(ctx, path, &doc); err != nil {
		return err
	}
	if doc.Rev == "" {
		return fmt.Errorf("package %s has no revision to update against", pkg)
	}
	for _, m := range doc.Maintainers {
		if m.Name == name {
			return nil
		}
	}

	profile, err := u.Get(ctx, name)
	if err != nil {
		return err
	}
	doc.Maintainers = append(doc.Maintainers, core.Maintainer{
		Name:  name,
		Email: profile.Email,
	})

	return u.client.Put(ctx, path+"/-rev/"+url.PathEscape(doc.Rev), doc, nil)
}

// Snapshot is the assembled view of an account: the profile, the
// packages it publishes, and the packages it starred.
type Snapshot struct {
	User     *core.User
	Packages []string
	Starred  []string
}

// Sync gathers the profile and both package lists concurrently.
func (u *Users) Sync(ctx context.Context, name string) (*Snapshot, error) {
	snapshot := &Snapshot{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := u.Get(ctx, name)
		snapshot.User = user
		return err
	})
	g.Go(func() error {
		packages, err := u.List(ctx, name)
		snapshot.Packages = packages
		return err
	})
	g.Go(func() error {
		starred, err := u.Starred(ctx, name)
		snapshot.Starred = starred
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}
