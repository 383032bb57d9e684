package auth

import (
	"context"

	"github.com/ernie/trinity-link/internal/domain"
)

// GrantStore holds per-identity permission grants
type GrantStore interface {
	HasPermission(ctx context.Context, identity domain.Identity, permission string) (bool, error)
}

// Checker grants a permission when it is in the configured defaults or has
// been granted to the identity explicitly.
type Checker struct {
	defaults map[string]bool
	grants   GrantStore
}

// NewChecker creates a permission checker. A "*" default grants everything.
func NewChecker(defaults []string, grants GrantStore) *Checker {
	d := make(map[string]bool, len(defaults))
	for _, p := range defaults {
		d[p] = true
	}
	return &Checker{defaults: d, grants: grants}
}

// HasPermission reports whether game holds permission
func (c *Checker) HasPermission(ctx context.Context, game domain.Identity, permission string) (bool, error) {
	if c.defaults["*"] || c.defaults[permission] {
		return true, nil
	}
	if c.grants == nil {
		return false, nil
	}
	return c.grants.HasPermission(ctx, game, permission)
}
