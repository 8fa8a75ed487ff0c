// Package licenses resolves SPDX descriptors from the license fields of
// raw registry version objects.
//
// Version objects declare licenses in every shape npm ever accepted: a
// bare string, a {type, url} object, or a list of either. The resolver
// flattens whatever it finds into a single expression and validates it
// against the SPDX license list.
package licenses

import (
	"context"
	"fmt"
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
)

// Resolver resolves license descriptors. The zero value passes unknown
// descriptors through unchanged; with Strict set, descriptors that are
// not valid SPDX expressions fail resolution.
type Resolver struct {
	Strict bool
}

// Default is the lenient resolver used when none is configured.
var Default = &Resolver{}

// Resolve extracts the license or licenses field from a version object
// and returns the flattened descriptor. An absent or empty field
// resolves to the empty string without error.
func (r *Resolver) Resolve(_ context.Context, version map[string]any) (string, error) {
	raw := version["license"]
	if raw == nil {
		raw = version["licenses"]
	}

	expr := flatten(raw)
	if expr == "" {
		return "", nil
	}

	if valid, invalid := spdxexp.ValidateLicenses([]string{expr}); !valid && r.Strict {
		return "", fmt.Errorf("invalid SPDX expression %q (unrecognized: %s)", expr, strings.Join(invalid, ", "))
	}
	return expr, nil
}

// Licenses splits an SPDX expression into its individual license ids.
func (r *Resolver) Licenses(expr string) ([]string, error) {
	return spdxexp.ExtractLicenses(expr)
}

// flatten collapses the historical license field shapes into one
// expression. Lists join with OR, matching how multi-licensed packages
// meant them.
func flatten(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if s, ok := value["type"].(string); ok {
			return strings.TrimSpace(s)
		}
		if s, ok := value["name"].(string); ok {
			return strings.TrimSpace(s)
		}
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " OR ")
	}
	return ""
}
