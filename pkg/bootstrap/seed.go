package bootstrap

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
)

// AllPermissions in a role seed grants every permission in the catalog
const AllPermissions = "*"

//go:embed seed.yaml
var defaultSeed []byte

// Catalog lists the permissions and roles a fresh installation needs
type Catalog struct {
	Permissions []PermissionSeed `yaml:"permissions"`
	Roles       []RoleSeed       `yaml:"roles"`
}

// PermissionSeed describes one catalog permission
type PermissionSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// RoleSeed describes one built-in role by permission name
type RoleSeed struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// Result reports what Apply created
type Result struct {
	PermissionsCreated []string
	RolesCreated       []string
}

// CatalogStore is the subset of rbac.Store used for seeding
type CatalogStore interface {
	CreatePermission(ctx context.Context, req rbac.CreatePermissionRequest) (*rbac.Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*rbac.Permission, error)
	CreateRole(ctx context.Context, req rbac.CreateRoleRequest) (*rbac.Role, error)
	GetRoleByName(ctx context.Context, name string) (*rbac.Role, error)
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultSeed)
}

// ParseCatalog decodes and checks a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&catalog); err != nil {
		return nil, apperrors.Configuration("invalid seed catalog: %v", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks that names are unique and roles only reference catalog permissions
func (c *Catalog) Validate() error {
	known := make(map[string]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		if p.Name == "" {
			return apperrors.Configuration("seed permission without a name")
		}
		if known[p.Name] {
			return apperrors.Configuration("duplicate seed permission %q", p.Name)
		}
		known[p.Name] = true
	}

	roles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.Name == "" {
			return apperrors.Configuration("seed role without a name")
		}
		if roles[r.Name] {
			return apperrors.Configuration("duplicate seed role %q", r.Name)
		}
		roles[r.Name] = true
		for _, name := range r.Permissions {
			if name != AllPermissions && !known[name] {
				return apperrors.Configuration("seed role %q references unknown permission %q", r.Name, name)
			}
		}
	}
	return nil
}

// Covers reports the policy permission names missing from the catalog
func (c *Catalog) Covers(policy rbac.Policy) []string {
	known := make(map[string]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		known[p.Name] = true
	}
	var missing []string
	for _, name := range policy.PermissionNames() {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Apply creates missing permissions and roles. Existing entries are left untouched,
// so running it again, or after an administrator has edited a role, changes nothing.
func Apply(ctx context.Context, store CatalogStore, catalog *Catalog) (*Result, error) {
	result := &Result{}
	ids := make(map[string]int64, len(catalog.Permissions))

	for _, seed := range catalog.Permissions {
		p, err := store.GetPermissionByName(ctx, seed.Name)
		if apperrors.IsNotFound(err) {
			p, err = store.CreatePermission(ctx, rbac.CreatePermissionRequest{Name: seed.Name, Description: seed.Description})
			if err == nil {
				result.PermissionsCreated = append(result.PermissionsCreated, seed.Name)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to seed permission %s: %w", seed.Name, err)
		}
		ids[seed.Name] = p.ID
	}

	for _, seed := range catalog.Roles {
		_, err := store.GetRoleByName(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to look up role %s: %w", seed.Name, err)
		}

		if _, err := store.CreateRole(ctx, rbac.CreateRoleRequest{
			Name:          seed.Name,
			PermissionIDs: seed.permissionIDs(catalog, ids),
		}); err != nil {
			return nil, fmt.Errorf("failed to seed role %s: %w", seed.Name, err)
		}
		result.RolesCreated = append(result.RolesCreated, seed.Name)
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"permissions_created": len(result.PermissionsCreated),
		"roles_created":       len(result.RolesCreated),
	}).Info("Seed catalog applied")
	return result, nil
}

func (r RoleSeed) permissionIDs(catalog *Catalog, ids map[string]int64) []int64 {
	out := []int64{}
	for _, name := range r.Permissions {
		if name == AllPermissions {
			for _, p := range catalog.Permissions {
				out = append(out, ids[p.Name])
			}
			continue
		}
		out = append(out, ids[name])
	}
	return out
}
